package api

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when a put would overwrite an existing
	// document id. The store is append-only.
	ErrDuplicateID = errors.New("document id already exists")

	// ErrNotFound is returned when a document id cannot be resolved.
	ErrNotFound = errors.New("document not found")
)

// EmbeddingError reports a failed embedding computation. It is never
// silently skipped; the caller decides whether to drop the text or retry.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding failed: %s: %v", e.Reason, e.Err)
	}
	return "embedding failed: " + e.Reason
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionError reports a vector whose length does not match the declared
// index dimensionality. This is a fatal configuration defect, not a
// runtime condition to fall back from.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// NoViableTransitionError means no outgoing edge condition matched after a
// commit. Graph validation makes this impossible by construction; the
// engine still defends against it at runtime.
type NoViableTransitionError struct {
	Node string
}

func (e *NoViableTransitionError) Error() string {
	return fmt.Sprintf("no viable transition out of node %q", e.Node)
}

// RunawayError means the run exceeded its global stage-invocation budget.
type RunawayError struct {
	Limit int
}

func (e *RunawayError) Error() string {
	return fmt.Sprintf("runaway workflow: exceeded %d stage invocations", e.Limit)
}

// StageError is a Fatal outcome from a stage, including a Retryable stage
// that exhausted its attempts.
type StageError struct {
	Stage    string
	Attempts int
	Detail   string
}

func (e *StageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("stage %q failed after %d attempts: %s", e.Stage, e.Attempts, e.Detail)
	}
	return fmt.Sprintf("stage %q failed: %s", e.Stage, e.Detail)
}
