package engine

import (
	"errors"
	"fmt"

	"github.com/tkoskine/stratum/pkg/api"
)

// node is one executable vertex of a compiled graph: a single stage, or a
// group of stages with disjoint outputs that may run concurrently.
type node struct {
	name    string
	stages  []api.StageDefinition
	outputs []string
	edges   []api.EdgeDefinition
}

func (n *node) terminal() bool { return len(n.edges) == 0 }

// Graph is a validated, immutable workflow graph.
type Graph struct {
	name  string
	start string
	nodes map[string]*node
}

// Name returns the graph name, which also keys its checkpoint.
func (g *Graph) Name() string { return g.name }

// Compile validates a graph definition and resolves it into an executable
// form. All structural defects (unknown stage names in edges, fields
// owned by more than one stage, a node without an exhaustive transition
// set) are reported here, before any run starts.
func Compile(def api.GraphDefinition) (*Graph, error) {
	if def.Name == "" {
		return nil, errors.New("graph name is required")
	}
	if len(def.Stages)+len(def.Groups) == 0 {
		return nil, errors.New("graph must declare at least one stage")
	}

	g := &Graph{
		name:  def.Name,
		start: def.Start,
		nodes: make(map[string]*node),
	}

	addNode := func(name string, stages []api.StageDefinition) error {
		if name == "" {
			return errors.New("stage name must not be empty")
		}
		if name == api.StartNode || name == api.EndNode {
			return fmt.Errorf("stage name %q is reserved", name)
		}
		if _, exists := g.nodes[name]; exists {
			return fmt.Errorf("duplicate node name %q", name)
		}
		var outputs []string
		for _, stg := range stages {
			if stg.Fn == nil {
				return fmt.Errorf("stage %q has nil function", stg.Name)
			}
			outputs = append(outputs, stg.Outputs...)
		}
		g.nodes[name] = &node{name: name, stages: stages, outputs: outputs}
		return nil
	}

	for _, stg := range def.Stages {
		if err := addNode(stg.Name, []api.StageDefinition{stg}); err != nil {
			return nil, err
		}
	}
	for _, grp := range def.Groups {
		if len(grp.Stages) < 2 {
			return nil, fmt.Errorf("group %q needs at least two stages", grp.Name)
		}
		if err := addNode(grp.Name, grp.Stages); err != nil {
			return nil, err
		}
	}

	// Each state field belongs to exactly one stage.
	owners := make(map[string]string)
	for _, n := range g.nodes {
		for _, stg := range n.stages {
			for _, field := range stg.Outputs {
				if owner, taken := owners[field]; taken {
					return nil, fmt.Errorf("field %q owned by both %q and %q", field, owner, stg.Name)
				}
				owners[field] = stg.Name
			}
		}
	}

	if g.start == "" {
		return nil, errors.New("graph start node is required")
	}
	if _, ok := g.nodes[g.start]; !ok {
		return nil, fmt.Errorf("start node %q is not a declared stage", g.start)
	}

	for _, edge := range def.Edges {
		from, ok := g.nodes[edge.From]
		if !ok {
			return nil, fmt.Errorf("edge from unknown node %q", edge.From)
		}
		if edge.To != api.EndNode {
			if _, ok := g.nodes[edge.To]; !ok {
				return nil, fmt.Errorf("edge from %q to unknown node %q", edge.From, edge.To)
			}
		}
		from.edges = append(from.edges, edge)
	}

	// Exhaustiveness by construction: every node routes somewhere for any
	// reachable state, which requires a final unconditional edge.
	for _, n := range g.nodes {
		if len(n.edges) == 0 {
			return nil, fmt.Errorf("node %q has no outgoing edges", n.name)
		}
		if last := n.edges[len(n.edges)-1]; last.When != nil {
			return nil, fmt.Errorf("node %q lacks a final unconditional edge", n.name)
		}
	}

	return g, nil
}

// next evaluates a node's outgoing edges in declared order against the
// committed state and returns the first match. ok is false only when the
// graph was constructed outside Compile; validation makes that
// unreachable for compiled graphs.
func (g *Graph) next(n *node, st api.State) (string, bool) {
	for _, edge := range n.edges {
		if edge.When == nil || edge.When(st) {
			return edge.To, true
		}
	}
	return "", false
}
