package persistence

import (
	"context"

	"github.com/tkoskine/stratum/pkg/api"
)

// MetadataFilter selects documents by metadata. A nil filter matches all.
type MetadataFilter func(metadata map[string]string) bool

// DocumentStore holds immutable text artifacts. Put is append-only:
// overwriting an existing id fails with api.ErrDuplicateID. Implementations
// must support concurrent Put/Get/List without external locking.
type DocumentStore interface {
	// Put stores a document and returns its id. If doc.ID is empty a new
	// unique id is assigned.
	Put(ctx context.Context, doc api.Document) (string, error)

	// Get returns the document with the given id, or api.ErrNotFound.
	Get(ctx context.Context, id string) (api.Document, error)

	// List returns documents whose metadata matches the filter, in stable
	// insertion order. Calling List again restarts the sequence.
	List(ctx context.Context, filter MetadataFilter) ([]api.Document, error)
}

// CheckpointStore persists workflow state between runs, keyed by graph
// name. A previous run's checkpoint is read at most once, at start.
type CheckpointStore interface {
	// Save overwrites the checkpoint for the graph.
	Save(ctx context.Context, graph string, st api.State) error

	// Load returns the checkpoint and true, or a zero state and false when
	// none exists.
	Load(ctx context.Context, graph string) (api.State, bool, error)

	// Delete removes the checkpoint. It is a no-op when none exists.
	Delete(ctx context.Context, graph string) error
}
