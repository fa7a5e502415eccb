// Package assemble builds the retrieval context a stage needs before it is
// invoked: it renders the stage's query template against the current
// workflow state and resolves it through the retriever. Stages stay
// decoupled from retrieval mechanics and remain testable with a stubbed
// document sequence.
package assemble

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tkoskine/stratum/pkg/api"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Assembler resolves stage query templates through a retriever.
type Assembler struct {
	retriever   api.Retriever
	defaultTopK int
}

// New creates an assembler. defaultTopK applies when a template leaves
// TopK unset.
func New(retriever api.Retriever, defaultTopK int) *Assembler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Assembler{retriever: retriever, defaultTopK: defaultTopK}
}

// Assemble returns the retrieved documents for a stage, or nil when the
// stage declares no query or no retriever is configured.
func (a *Assembler) Assemble(ctx context.Context, stage api.StageDefinition, st api.State) ([]api.Document, api.RetrievalQuery, error) {
	if stage.Query == nil || a == nil || a.retriever == nil {
		return nil, api.RetrievalQuery{}, nil
	}

	q := api.RetrievalQuery{
		Text: RenderTemplate(stage.Query.Text, st),
		TopK: stage.Query.TopK,
		Mode: stage.Query.Mode,
	}
	if q.TopK <= 0 {
		q.TopK = a.defaultTopK
	}
	if q.Mode == "" {
		q.Mode = api.ModeHybrid
	}

	docs, err := a.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, q, err
	}
	return docs, q, nil
}

// RenderTemplate substitutes {field} placeholders with the current value
// of that state field. String fields render unquoted; other values render
// as their compact JSON. Unset fields render empty, so a template written
// against later-stage fields degrades to a plain query early in the run.
func RenderTemplate(tmpl string, st api.State) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := strings.Trim(m, "{}")
		raw, ok := st.Fields[name]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	})
}
