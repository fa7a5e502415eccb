package api

import (
	"context"
	"encoding/json"
	"time"
)

// Status classifies a single stage invocation.
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusRetryable Status = "RETRYABLE"
	StatusFatal     Status = "FATAL"
)

// StageResult is produced once per stage invocation and consumed
// immediately by the engine.
type StageResult struct {
	Status Status

	// Output is the partial state this stage owns. On Success the engine
	// commits it atomically; on any failure it is discarded.
	Output map[string]json.RawMessage

	// ErrorDetail describes a Retryable or Fatal outcome.
	ErrorDetail string

	// NewDocuments are stored and indexed after the output commits, making
	// them retrievable by later stages.
	NewDocuments []Document
}

// Success builds a successful result carrying the given output fields.
func Success(output map[string]json.RawMessage) StageResult {
	return StageResult{Status: StatusSuccess, Output: output}
}

// Retryable builds a result asking the engine to re-invoke the stage.
func Retryable(detail string) StageResult {
	return StageResult{Status: StatusRetryable, ErrorDetail: detail}
}

// Fatal builds a result that halts the run.
func Fatal(detail string) StageResult {
	return StageResult{Status: StatusFatal, ErrorDetail: detail}
}

// StageFunc is one pure transformation step of the pipeline.
//
// It must not mutate st or docs and must not perform I/O beyond the
// documented side effect of returning NewDocuments in its result. Given an
// identical state snapshot and an identical retrieved document sequence it
// must produce an identical Output.
type StageFunc func(ctx context.Context, st State, docs []Document) StageResult

// RetryPolicy controls how a Retryable stage result is handled.
// MaxAttempts includes the first attempt; exceeding it converts the
// failure to Fatal.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// QueryTemplate describes the retrieval a stage wants before invocation.
// Text may reference state fields as {field_name}; the context assembler
// renders it against the current state.
type QueryTemplate struct {
	Text string
	TopK int
	Mode SearchMode
}

// StageDefinition declares one stage of a graph.
type StageDefinition struct {
	Name string
	Fn   StageFunc

	// Outputs are the state fields this stage owns. Each field belongs to
	// exactly one stage; re-running the stage replaces them.
	Outputs []string

	Retry *RetryPolicy
	Query *QueryTemplate
}
