package retrieve

import (
	"github.com/tkoskine/stratum/internal/index"
)

// OverlapScore is the lexical relevance of a document to a query: the
// fraction of distinct query terms present in the document. It is
// deterministic and monotonic in term overlap, and shares the embedder's
// tokenizer so lexical and semantic modes agree on what a term is.
func OverlapScore(query, text string) float64 {
	queryTerms := index.Tokenize(query)
	if len(queryTerms) == 0 {
		return 0
	}

	distinct := make(map[string]struct{}, len(queryTerms))
	for _, t := range queryTerms {
		distinct[t] = struct{}{}
	}

	docTerms := make(map[string]struct{})
	for _, t := range index.Tokenize(text) {
		docTerms[t] = struct{}{}
	}

	matched := 0
	for t := range distinct {
		if _, ok := docTerms[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(distinct))
}
