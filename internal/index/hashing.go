package index

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/tkoskine/stratum/pkg/api"
)

// HashingEmbedder is a local, deterministic embedder: a feature-hashed
// bag-of-words projected into a fixed dimension and L2-normalized. Two
// texts sharing terms produce nearby vectors, which is enough for offline
// runs and tests; production runs inject a model-backed Embedder instead.
type HashingEmbedder struct {
	dim int
}

var _ api.Embedder = (*HashingEmbedder)(nil)

// NewHashingEmbedder creates a hashing embedder of the given dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Dimension() int { return e.dim }

func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	terms := Tokenize(text)
	if len(terms) == 0 {
		return nil, &api.EmbeddingError{Reason: "empty text"}
	}

	vec := make([]float32, e.dim)
	for _, term := range terms {
		h := fnv.New32a()
		h.Write([]byte(term))
		bucket := int(h.Sum32()) % e.dim
		if bucket < 0 {
			bucket += e.dim
		}
		// Sign bit from a second hash spreads mass over both directions,
		// reducing collisions between unrelated term sets.
		sign := float32(1)
		if h.Sum32()&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, &api.EmbeddingError{Reason: "degenerate vector"}
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Tokenize lowercases and splits text into alphanumeric terms. It is
// shared by the hashing embedder and the lexical scorer so both see the
// same term stream.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
