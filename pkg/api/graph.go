package api

// Sentinel node names. START is implicit (the graph declares its entry
// stage); END is the successful terminal. A run that halts on a fatal
// error lands in the implicit ERROR absorbing state instead.
const (
	StartNode = "START"
	EndNode   = "END"
)

// Condition guards an edge. A nil Condition always matches.
type Condition func(State) bool

// EdgeDefinition routes from one node to the next. Edges out of a node are
// evaluated in declared order against the just-committed state; the first
// matching edge wins. Every node must declare a final unconditional edge so
// the transition set is exhaustive by construction.
type EdgeDefinition struct {
	From string
	To   string
	When Condition
}

// GroupDefinition is a node whose member stages have no shared output
// fields and may execute concurrently. The join waits for every member and
// the merged output commits atomically.
type GroupDefinition struct {
	Name   string
	Stages []StageDefinition
}

// GraphDefinition is the static description of a workflow. It is built
// once (normally via the GraphBuilder), validated at engine construction,
// and never mutated during a run.
type GraphDefinition struct {
	Name   string
	Start  string
	Stages []StageDefinition
	Groups []GroupDefinition
	Edges  []EdgeDefinition
}

// Run describes one execution of a graph. It is the unit observers see and
// what Engine.Run returns; the durable artifact is the checkpointed State,
// not the Run itself.
type Run struct {
	ID    string
	Graph string

	Status RunStatus

	// Node is the node being (or last) executed.
	Node string

	// Invocations counts stage function calls, including retry attempts.
	Invocations int

	// Resumed reports whether the run started from an existing checkpoint.
	Resumed bool

	// State is the final state at return time.
	State State

	Err error
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)
