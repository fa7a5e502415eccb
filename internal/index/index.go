// Package index maintains the nearest-neighbor index over document
// embeddings. The index is a flat in-process cosine-similarity scan with
// incremental insertion; a full rebuild is never performed at runtime, and
// a vector of the wrong dimensionality is rejected as a configuration
// defect.
package index

import (
	"math"
	"sort"
	"sync"

	"github.com/tkoskine/stratum/pkg/api"
)

// Hit is one similarity-search result.
type Hit struct {
	ID    string
	Score float64
}

// Index is a goroutine-safe incremental vector index.
type Index struct {
	mu   sync.RWMutex
	dim  int
	ids  []string
	vecs [][]float32
	byID map[string]struct{}
}

// New creates an index for vectors of the given dimensionality.
func New(dim int) *Index {
	return &Index{
		dim:  dim,
		byID: make(map[string]struct{}),
	}
}

// Dimension returns the declared vector dimensionality.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Insert adds one vector. A dimensionality mismatch returns a
// *api.DimensionError; inserting an already-indexed id returns
// api.ErrDuplicateID (documents are immutable, so a vector never changes).
func (ix *Index) Insert(id string, vec []float32) error {
	if len(vec) != ix.dim {
		return &api.DimensionError{Want: ix.dim, Got: len(vec)}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.byID[id]; exists {
		return api.ErrDuplicateID
	}
	ix.byID[id] = struct{}{}
	ix.ids = append(ix.ids, id)
	ix.vecs = append(ix.vecs, vec)
	return nil
}

// Search returns up to topK (id, score) pairs ordered by descending cosine
// similarity. Ties break by ascending id so results are deterministic.
func (ix *Index) Search(vec []float32, topK int) ([]Hit, error) {
	if len(vec) != ix.dim {
		return nil, &api.DimensionError{Want: ix.dim, Got: len(vec)}
	}
	if topK <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]Hit, 0, len(ix.ids))
	for i, id := range ix.ids {
		hits = append(hits, Hit{ID: id, Score: cosine(vec, ix.vecs[i])})
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

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
