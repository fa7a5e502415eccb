// Package stratum provides a lightweight, embeddable workflow and
// retrieval engine for layered analysis pipelines in Go.
//
// Stratum is designed for programs that transform raw input records into a
// stack of derived reports through ordered, conditionally-branching
// stages, where each stage can retrieve relevant artifacts produced by the
// stages before it. It runs fully in-process, persists its state through
// an embedded database, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The stratum programming model is intentionally small and idiomatic:
//
//  1. Engine
//  2. GraphBuilder
//  3. StageFunc
//  4. Retriever
//  5. Observer
//
// # Engine
//
// The Engine executes stages as nodes of a directed graph. After each
// successful stage it commits the stage's output into the workflow state
// atomically, checkpoints the state, and evaluates the node's outgoing
// edge conditions in declared order to pick the next node. Failures are
// classified by the stage itself: Retryable results are re-invoked with
// bounded backoff, Fatal results halt the run in the ERROR state with the
// triggering stage and detail preserved in the state's reserved error
// field.
//
// A run that halted, or a completed run re-executed later, resumes from
// its checkpoint: stages whose owned output fields are already present are
// skipped, so expensive work is never recomputed unless the caller forces
// a restart. Cycles are permitted for bounded self-correction loops; a
// global invocation budget guarantees termination regardless.
//
// Engines can keep everything in memory (best for tests) or persist
// documents and checkpoints in SQLite for durability.
//
// # GraphBuilder
//
// GraphBuilder provides the declarative API used to define graphs:
//
//	def, err := stratum.NewGraph("job-market").
//	    Start("collect").
//	    Stage("collect", collectFn, stratum.Outputs("job_data")).
//	    Stage("analyze", analyzeFn,
//	        stratum.Outputs("tech_analysis"),
//	        stratum.WithQuery("skills mentioned in {job_data}", 5, stratum.ModeHybrid)).
//	    Edge("collect", "analyze").
//	    Edge("analyze", stratum.EndNode).
//	    Build()
//
// Graphs are validated when built: unknown stage names in edges, output
// fields owned by two stages, and nodes without an exhaustive transition
// set are all build-time errors, never runtime surprises.
//
// # StageFunc
//
// A StageFunc is the fundamental executable unit:
//
//	type StageFunc func(ctx context.Context, st State, docs []Document) StageResult
//
// Stages are pure: identical state and retrieved documents produce an
// identical result. They never perform I/O directly; external
// capabilities (search APIs, language models) are injected, and new
// artifacts are handed back to the engine via StageResult.NewDocuments
// for storage and indexing.
//
// # Retriever
//
// Documents accumulate in an append-only store with a vector index over
// their embeddings. Stages declare a query template rendered against the
// current state; the engine retrieves matching documents, by semantic
// similarity, lexical overlap, or a hybrid rerank of both, and passes
// them to the stage as its context.
//
// # Observer
//
// Observers receive run, stage, and retrieval lifecycle events for
// logging and metrics; a slog-backed LoggingObserver and a BasicMetrics
// collector ship in the box.
//
// For a complete pipeline built on stratum, see cmd/stratum and the
// internal/jobs package.
package stratum
