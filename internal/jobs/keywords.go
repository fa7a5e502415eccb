package jobs

import (
	"sort"
	"strings"
)

// Keyword vocabularies for the deterministic analyses. Matching is
// case-insensitive substring search over posting text.

var skillKeywords = []string{
	"python", "go", "java", "javascript", "typescript", "rust", "c++",
	"sql", "nosql", "react", "node.js", "linux", "git", "graphql",
	"aws", "azure", "gcp", "docker", "kubernetes", "terraform",
}

var stackKeywords = []string{
	"microservices", "serverless", "rest api", "grpc", "event-driven",
	"data pipeline", "ci/cd", "mlops", "etl",
}

var trendKeywords = []string{
	"generative ai", "large language model", "edge computing",
	"platform engineering", "observability", "zero trust",
}

var educationKeywords = []string{
	"bachelor", "master", "phd", "certification", "bootcamp",
}

var aiRoleKeywords = []string{
	"machine learning", "ml engineer", "ai engineer", "data scientist",
	"deep learning", "nlp", "computer vision", "ai research",
}

var aiToolKeywords = []string{
	"tensorflow", "pytorch", "scikit-learn", "hugging face", "langchain",
	"openai", "llm", "rag", "vector database", "spark", "airflow",
}

// countMentions tallies how many texts mention each keyword at least once.
func countMentions(keywords []string, texts []string) map[string]int {
	counts := make(map[string]int, len(keywords))
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				counts[kw]++
			}
		}
	}
	return counts
}

// rankCounts converts a tally to entries ordered by count descending,
// name ascending. Entries below minCount are dropped.
func rankCounts(counts map[string]int, minCount int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for name, count := range counts {
		if count >= minCount {
			entries = append(entries, CountEntry{Name: name, Count: count})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// presentKeywords returns the keywords mentioned in any text, sorted.
func presentKeywords(keywords []string, texts []string) []string {
	counts := countMentions(keywords, texts)
	found := make([]string, 0, len(counts))
	for kw := range counts {
		found = append(found, kw)
	}
	sort.Strings(found)
	return found
}
