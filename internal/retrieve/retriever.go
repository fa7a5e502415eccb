// Package retrieve answers similarity and hybrid queries against the
// accumulated document store, and owns the ingestion path that keeps the
// store and the vector index in sync.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tkoskine/stratum/internal/index"
	"github.com/tkoskine/stratum/internal/persistence"
	"github.com/tkoskine/stratum/pkg/api"
)

// BackoffPolicy bounds retries of transient embedding-backend failures
// inside the retrieval boundary. Exhausted retries surface the last error.
type BackoffPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Service implements api.Retriever and api.DocumentSink.
type Service struct {
	store    persistence.DocumentStore
	index    *index.Index
	embedder api.Embedder
	weights  api.HybridWeights
	backoff  BackoffPolicy
}

var (
	_ api.Retriever    = (*Service)(nil)
	_ api.DocumentSink = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithWeights overrides the default equal hybrid weighting.
func WithWeights(w api.HybridWeights) Option {
	return func(s *Service) { s.weights = w }
}

// WithBackoff overrides the default embedding retry policy.
func WithBackoff(p BackoffPolicy) Option {
	return func(s *Service) { s.backoff = p }
}

// New creates a retrieval service over the given store, index, and
// embedding backend.
func New(store persistence.DocumentStore, ix *index.Index, embedder api.Embedder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		index:    ix,
		embedder: embedder,
		weights:  api.EqualWeights(),
		backoff:  BackoffPolicy{MaxAttempts: 3, Delay: 200 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores and indexes one document. The document becomes retrievable
// only after indexing completes; an embedding failure leaves the store
// untouched and is reported to the caller.
func (s *Service) Add(ctx context.Context, doc api.Document) (string, error) {
	vec := doc.Vector
	if vec == nil {
		var err error
		vec, err = s.embed(ctx, doc.Text)
		if err != nil {
			return "", err
		}
	}
	if len(vec) != s.index.Dimension() {
		return "", &api.DimensionError{Want: s.index.Dimension(), Got: len(vec)}
	}
	doc.Vector = vec

	id, err := s.store.Put(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := s.index.Insert(id, vec); err != nil {
		return "", fmt.Errorf("index document %s: %w", id, err)
	}
	return id, nil
}

// Reindex inserts every stored document into the index, re-embedding any
// document persisted without a vector. It restores the store/index sync
// invariant after a process restart over a durable store. A stored vector
// of the wrong dimensionality is a configuration defect and aborts.
func (s *Service) Reindex(ctx context.Context) error {
	docs, err := s.store.List(ctx, nil)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		vec := doc.Vector
		if vec == nil {
			vec, err = s.embed(ctx, doc.Text)
			if err != nil {
				return fmt.Errorf("reindex %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Insert(doc.ID, vec); err != nil {
			return fmt.Errorf("reindex %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Retrieve answers a query, returning at most q.TopK documents ranked by
// the selected mode.
func (s *Service) Retrieve(ctx context.Context, q api.RetrievalQuery) ([]api.Document, error) {
	if q.TopK <= 0 {
		return nil, nil
	}

	switch q.Mode {
	case api.ModeSemantic, "":
		ranked, err := s.semantic(ctx, q.Text, q.TopK)
		if err != nil {
			return nil, err
		}
		return s.resolve(ctx, ranked)
	case api.ModeLexical:
		ranked, err := s.lexical(ctx, q.Text, q.TopK)
		if err != nil {
			return nil, err
		}
		return s.resolve(ctx, ranked)
	case api.ModeHybrid:
		ranked, err := s.hybrid(ctx, q.Text, q.TopK)
		if err != nil {
			return nil, err
		}
		return s.resolve(ctx, ranked)
	default:
		return nil, fmt.Errorf("unknown search mode %q", q.Mode)
	}
}

func (s *Service) semantic(ctx context.Context, text string, topK int) ([]index.Hit, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.index.Search(vec, topK)
}

func (s *Service) lexical(ctx context.Context, text string, topK int) ([]index.Hit, error) {
	docs, err := s.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]index.Hit, 0, len(docs))
	for _, doc := range docs {
		score := OverlapScore(text, doc.Text)
		if score > 0 {
			hits = append(hits, index.Hit{ID: doc.ID, Score: score})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// hybrid runs both modes, min-max normalizes each ranked list to [0,1],
// combines scores by the configured weights, breaks ties by semantic rank,
// and truncates to topK.
func (s *Service) hybrid(ctx context.Context, text string, topK int) ([]index.Hit, error) {
	sem, err := s.semantic(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	lex, err := s.lexical(ctx, text, topK)
	if err != nil {
		return nil, err
	}

	type entry struct {
		combined float64
		semRank  int
		lexRank  int
	}
	const unranked = 1 << 30

	entries := make(map[string]*entry)
	at := func(id string) *entry {
		e, ok := entries[id]
		if !ok {
			e = &entry{semRank: unranked, lexRank: unranked}
			entries[id] = e
		}
		return e
	}

	for rank, hit := range sem {
		e := at(hit.ID)
		e.semRank = rank
		e.combined += s.weights.Semantic * normalize(hit.Score, sem)
	}
	for rank, hit := range lex {
		e := at(hit.ID)
		e.lexRank = rank
		e.combined += s.weights.Lexical * normalize(hit.Score, lex)
	}

	out := make([]index.Hit, 0, len(entries))
	for id, e := range entries {
		out = append(out, index.Hit{ID: id, Score: e.combined})
	}
	sort.Slice(out, func(a, b int) bool {
		ea, eb := entries[out[a].ID], entries[out[b].ID]
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if ea.semRank != eb.semRank {
			return ea.semRank < eb.semRank
		}
		if ea.lexRank != eb.lexRank {
			return ea.lexRank < eb.lexRank
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// normalize min-max scales a score within its ranked list. A constant or
// single-element list maps to 1.0 so the entry still contributes its full
// weight.
func normalize(score float64, list []index.Hit) float64 {
	if len(list) == 0 {
		return 0
	}
	min, max := list[0].Score, list[0].Score
	for _, h := range list[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	if max == min {
		return 1.0
	}
	return (score - min) / (max - min)
}

func (s *Service) resolve(ctx context.Context, hits []index.Hit) ([]api.Document, error) {
	docs := make([]api.Document, 0, len(hits))
	for _, hit := range hits {
		doc, err := s.store.Get(ctx, hit.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve hit %s: %w", hit.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// embed calls the embedding backend with bounded retries. Hard embedding
// failures (empty text, dimensionality) are not retried.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	attempts := s.backoff.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		vec, err := s.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		var embErr *api.EmbeddingError
		if errors.As(err, &embErr) && embErr.Err == nil {
			// Deterministic input failure; retrying cannot help.
			return nil, err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff.Delay):
		}
	}
	return nil, lastErr
}
