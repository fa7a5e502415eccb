package api

import "context"

// Document is an immutable text artifact with metadata. A new version is a
// new Document with a new id; the document store rejects overwrites.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Vector is the document embedding, set once indexing completes.
	Vector []float32 `json:"vector,omitempty"`
}

// SearchMode selects the retrieval strategy.
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeLexical  SearchMode = "lexical"
	ModeHybrid   SearchMode = "hybrid"
)

// RetrievalQuery is constructed per stage invocation and discarded after.
type RetrievalQuery struct {
	Text string
	TopK int
	Mode SearchMode
}

// HybridWeights weighs the two ranked lists when reranking hybrid results.
// Weights are applied to scores min-max normalized to [0,1] within each
// list.
type HybridWeights struct {
	Semantic float64
	Lexical  float64
}

// EqualWeights is the default hybrid weighting.
func EqualWeights() HybridWeights {
	return HybridWeights{Semantic: 0.5, Lexical: 0.5}
}

// Embedder converts text into a fixed-length vector. Embed must be a pure
// function of its input for a given model version. Implementations are
// injected capabilities; the indexer never hard-wires a backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Completer produces text from a prompt. Report-writing stages depend on
// it the same way the indexer depends on Embedder.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever answers ranked document queries against the accumulated
// artifact store.
type Retriever interface {
	Retrieve(ctx context.Context, q RetrievalQuery) ([]Document, error)
}

// DocumentSink accepts new documents for storage and indexing. The engine
// feeds StageResult.NewDocuments through it after each commit.
type DocumentSink interface {
	Add(ctx context.Context, doc Document) (string, error)
}
