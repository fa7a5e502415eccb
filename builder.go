package stratum

import (
	"fmt"

	"github.com/tkoskine/stratum/internal/engine"
	"github.com/tkoskine/stratum/pkg/api"
)

// GraphBuilder provides a fluent API for defining workflow graphs:
//
//	def, err := stratum.NewGraph("pipeline").
//	    Start("collect").
//	    Stage("collect", collect, stratum.Outputs("records")).
//	    Stage("report", report, stratum.Outputs("report")).
//	    Edge("collect", "report").
//	    Edge("report", stratum.EndNode).
//	    Build()
type GraphBuilder struct {
	def api.GraphDefinition
}

// NewGraph creates a new graph builder with the given name. The name also
// keys the graph's checkpoint.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{def: api.GraphDefinition{Name: name}}
}

// StageOption configures a stage declaration.
type StageOption func(*api.StageDefinition)

// Outputs declares the state fields the stage owns.
func Outputs(fields ...string) StageOption {
	return func(s *api.StageDefinition) { s.Outputs = fields }
}

// WithRetry attaches a retry policy to the stage.
func WithRetry(policy RetryPolicy) StageOption {
	return func(s *api.StageDefinition) {
		// Copy so callers can mutate their policy afterwards without
		// affecting the stored definition.
		p := policy
		s.Retry = &p
	}
}

// WithQuery declares the retrieval the stage wants before invocation.
// The text may reference state fields as {field_name}.
func WithQuery(text string, topK int, mode SearchMode) StageOption {
	return func(s *api.StageDefinition) {
		s.Query = &api.QueryTemplate{Text: text, TopK: topK, Mode: mode}
	}
}

// StageDef builds a standalone stage definition, for use with Group.
func StageDef(name string, fn StageFunc, opts ...StageOption) StageDefinition {
	if name == "" {
		panic("stratum: stage name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("stratum: stage %q has nil function", name))
	}
	def := api.StageDefinition{Name: name, Fn: fn}
	for _, opt := range opts {
		opt(&def)
	}
	return def
}

// Start declares the graph's entry stage.
func (b *GraphBuilder) Start(name string) *GraphBuilder {
	b.def.Start = name
	return b
}

// Stage appends a stage node to the graph.
func (b *GraphBuilder) Stage(name string, fn StageFunc, opts ...StageOption) *GraphBuilder {
	b.def.Stages = append(b.def.Stages, StageDef(name, fn, opts...))
	return b
}

// Group appends a node whose member stages own disjoint state fields and
// may execute concurrently. The group joins before any downstream node.
func (b *GraphBuilder) Group(name string, stages ...StageDefinition) *GraphBuilder {
	b.def.Groups = append(b.def.Groups, api.GroupDefinition{Name: name, Stages: stages})
	return b
}

// Edge appends an unconditional edge. Edges out of a node are evaluated in
// the order they were declared.
func (b *GraphBuilder) Edge(from, to string) *GraphBuilder {
	return b.EdgeWhen(from, to, nil)
}

// EdgeWhen appends a conditional edge. A node's final edge must be
// unconditional so its transition set is exhaustive.
func (b *GraphBuilder) EdgeWhen(from, to string, cond Condition) *GraphBuilder {
	b.def.Edges = append(b.def.Edges, api.EdgeDefinition{From: from, To: to, When: cond})
	return b
}

// Definition returns the underlying GraphDefinition without validating it.
// Typically used when interacting with lower-level APIs.
func (b *GraphBuilder) Definition() GraphDefinition {
	return b.def
}

// Build validates the graph and returns its definition. All structural
// defects surface here rather than mid-run.
func (b *GraphBuilder) Build() (GraphDefinition, error) {
	if _, err := engine.Compile(b.def); err != nil {
		return GraphDefinition{}, err
	}
	return b.def, nil
}

// MustBuild is like Build but panics on error.
// Useful for initialization in main().
func (b *GraphBuilder) MustBuild() GraphDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
