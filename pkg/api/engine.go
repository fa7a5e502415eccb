package api

import "context"

// Engine is the high-level engine API. A run executes the graph
// synchronously to a terminal state: END (success) or ERROR (halted).
type Engine interface {
	// Run drives one execution. The returned Run is non-nil even when the
	// run halts in ERROR; err mirrors Run.Err.
	Run(ctx context.Context, opts RunOptions) (*Run, error)
}

// RunOptions controls one run.
type RunOptions struct {
	// ForceRestart discards any checkpoint and recomputes from START.
	// When false and a checkpoint exists, the run resumes from the last
	// successfully committed stage.
	ForceRestart bool
}
