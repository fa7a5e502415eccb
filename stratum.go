package stratum

import (
	"context"
	"database/sql"

	"github.com/tkoskine/stratum/internal/assemble"
	"github.com/tkoskine/stratum/internal/engine"
	"github.com/tkoskine/stratum/internal/index"
	"github.com/tkoskine/stratum/internal/persistence"
	"github.com/tkoskine/stratum/internal/retrieve"
	"github.com/tkoskine/stratum/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine          = api.Engine
	RunOptions      = api.RunOptions
	Run             = api.Run
	RunStatus       = api.RunStatus
	State           = api.State
	Control         = api.Control
	StageFunc       = api.StageFunc
	StageResult     = api.StageResult
	StageDefinition = api.StageDefinition
	Status          = api.Status
	RetryPolicy     = api.RetryPolicy
	QueryTemplate   = api.QueryTemplate
	GraphDefinition = api.GraphDefinition
	EdgeDefinition  = api.EdgeDefinition
	Condition       = api.Condition
	Document        = api.Document
	RetrievalQuery  = api.RetrievalQuery
	SearchMode      = api.SearchMode
	HybridWeights   = api.HybridWeights
	Embedder        = api.Embedder
	Completer       = api.Completer
	Observer        = api.Observer
	LoggingObserver = api.LoggingObserver
	BasicMetrics    = api.BasicMetrics
	NoopObserver    = api.NoopObserver
)

// Re-export common helpers and constructors.

var (
	NewState             = api.NewState
	Success              = api.Success
	Retryable            = api.Retryable
	Fatal                = api.Fatal
	MarshalField         = api.MarshalField
	MustField            = api.MustField
	EqualWeights         = api.EqualWeights
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Field decodes the named state field into T. The second return is false
// when the field is unset.
func Field[T any](s State, name string) (T, bool, error) {
	return api.Field[T](s, name)
}

// Re-export status and mode values for convenience.

const (
	StatusSuccess   = api.StatusSuccess
	StatusRetryable = api.StatusRetryable
	StatusFatal     = api.StatusFatal

	RunCompleted = api.RunCompleted
	RunFailed    = api.RunFailed

	ModeSemantic = api.ModeSemantic
	ModeLexical  = api.ModeLexical
	ModeHybrid   = api.ModeHybrid

	StartNode = api.StartNode
	EndNode   = api.EndNode
)

// DefaultEmbeddingDim is the dimensionality of the built-in hashing
// embedder used when no external backend is injected.
const DefaultEmbeddingDim = 256

type options struct {
	observer       api.Observer
	embedder       api.Embedder
	weights        api.HybridWeights
	maxInvocations int
	defaultTopK    int
}

// Option configures engine construction.
type Option func(*options)

// WithObserver sets the Observer notified of run and stage events.
func WithObserver(obs api.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithEmbedder injects the embedding backend. The default is a local
// deterministic feature-hashing embedder.
func WithEmbedder(e api.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithHybridWeights overrides the default equal hybrid search weighting.
func WithHybridWeights(w api.HybridWeights) Option {
	return func(o *options) { o.weights = w }
}

// WithMaxInvocations sets the global per-run stage-invocation budget.
func WithMaxInvocations(n int) Option {
	return func(o *options) { o.maxInvocations = n }
}

// WithDefaultTopK sets the retrieval depth for stages whose query
// template leaves TopK unset.
func WithDefaultTopK(k int) Option {
	return func(o *options) { o.defaultTopK = k }
}

// NewHashingEmbedder returns the built-in local embedder at the given
// dimensionality.
func NewHashingEmbedder(dim int) api.Embedder {
	return index.NewHashingEmbedder(dim)
}

// NewInMemoryEngine returns an Engine whose documents and checkpoints
// live entirely in memory. Best for tests and throwaway runs.
func NewInMemoryEngine(def GraphDefinition, opts ...Option) (Engine, error) {
	mem := persistence.NewInMemoryStore()
	return newEngine(def, mem, mem, opts...)
}

// NewSQLiteEngine returns an Engine that persists documents and
// checkpoints in a SQLite database. The caller imports the driver, e.g.
//
//	import _ "modernc.org/sqlite"
func NewSQLiteEngine(db *sql.DB, def GraphDefinition, opts ...Option) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return newEngine(def, store, store, opts...)
}

func newEngine(def GraphDefinition, docs persistence.DocumentStore, checkpoints persistence.CheckpointStore, opts ...Option) (Engine, error) {
	o := options{weights: api.EqualWeights()}
	for _, opt := range opts {
		opt(&o)
	}

	embedder := o.embedder
	if embedder == nil {
		embedder = index.NewHashingEmbedder(DefaultEmbeddingDim)
	}

	ix := index.New(embedder.Dimension())
	svc := retrieve.New(docs, ix, embedder, retrieve.WithWeights(o.weights))

	// A durable store may already hold documents from a previous process;
	// the index must cover them before anything is retrievable.
	if err := svc.Reindex(context.Background()); err != nil {
		return nil, err
	}

	return engine.New(def, engine.Config{
		Checkpoints:    checkpoints,
		Assembler:      assemble.New(svc, o.defaultTopK),
		Sink:           svc,
		Observer:       o.observer,
		MaxInvocations: o.maxInvocations,
	})
}
