// Package engine executes a compiled workflow graph: stages run as nodes
// of a directed graph with conditional transitions, retries with bounded
// backoff, atomic state commits, checkpointed resumption, and a global
// invocation budget that guarantees termination even for cyclic graphs.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tkoskine/stratum/internal/assemble"
	"github.com/tkoskine/stratum/internal/persistence"
	"github.com/tkoskine/stratum/pkg/api"
)

// DefaultMaxInvocations bounds the total number of stage invocations in
// one run when no explicit budget is configured.
const DefaultMaxInvocations = 100

// Config describes how to construct an Engine. Only Graph wiring is
// mandatory; everything else degrades to an in-memory or no-op default.
type Config struct {
	// Checkpoints persists state after every commit. Nil disables
	// resumption.
	Checkpoints persistence.CheckpointStore

	// Assembler resolves stage query templates before invocation.
	Assembler *assemble.Assembler

	// Sink stores and indexes documents returned by stages.
	Sink api.DocumentSink

	Observer       api.Observer
	MaxInvocations int
}

// Engine drives a single graph. It is safe to reuse across runs, but a
// run itself is a single logical thread of control.
type Engine struct {
	graph          *Graph
	checkpoints    persistence.CheckpointStore
	assembler      *assemble.Assembler
	sink           api.DocumentSink
	observer       api.Observer
	maxInvocations int
}

var _ api.Engine = (*Engine)(nil)

// New compiles the definition and returns an engine for it.
func New(def api.GraphDefinition, cfg Config) (*Engine, error) {
	g, err := Compile(def)
	if err != nil {
		return nil, err
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	maxInv := cfg.MaxInvocations
	if maxInv <= 0 {
		maxInv = DefaultMaxInvocations
	}

	return &Engine{
		graph:          g,
		checkpoints:    cfg.Checkpoints,
		assembler:      cfg.Assembler,
		sink:           cfg.Sink,
		observer:       obs,
		maxInvocations: maxInv,
	}, nil
}

// Run executes the graph to a terminal state. The returned Run is non-nil
// even on failure; err mirrors Run.Err so callers can use either.
func (e *Engine) Run(ctx context.Context, opts api.RunOptions) (*api.Run, error) {
	run := &api.Run{
		ID:     uuid.NewString(),
		Graph:  e.graph.name,
		Status: api.RunRunning,
	}

	state := api.NewState()
	resuming := false

	if opts.ForceRestart {
		if e.checkpoints != nil {
			if err := e.checkpoints.Delete(ctx, e.graph.name); err != nil {
				return nil, fmt.Errorf("discard checkpoint: %w", err)
			}
		}
	} else if e.checkpoints != nil {
		st, ok, err := e.checkpoints.Load(ctx, e.graph.name)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok {
			state = st
			state.Error = ""
			resuming = true
			run.Resumed = true
		}
	}
	state.Control.ForceRestart = opts.ForceRestart

	var invocations atomic.Int64
	e.observer.OnRunStart(ctx, run)

	current := e.graph.start
	visited := make(map[string]bool)
	for current != api.EndNode {
		n := e.graph.nodes[current]
		run.Node = current

		// A node is skippable at most once per walk. Revisiting one means a
		// cycle edge was taken, and the node must actually re-execute or the
		// walk would spin without ever touching the invocation budget.
		if resuming && !visited[current] && state.HasAll(n.outputs) {
			for _, stg := range n.stages {
				e.observer.OnStageSkipped(ctx, run, stg.Name)
			}
		} else {
			resuming = false
			next, err := e.executeNode(ctx, run, n, state, &invocations)
			run.Invocations = int(invocations.Load())
			if err != nil {
				return e.fail(ctx, run, state, err)
			}
			state = next
			if err := e.saveCheckpoint(ctx, state); err != nil {
				return e.fail(ctx, run, state, fmt.Errorf("save checkpoint: %w", err))
			}
		}
		visited[current] = true

		nextNode, ok := e.graph.next(n, state)
		if !ok {
			return e.fail(ctx, run, state, &api.NoViableTransitionError{Node: current})
		}
		current = nextNode
	}

	run.Invocations = int(invocations.Load())
	run.Status = api.RunCompleted
	run.State = state
	e.observer.OnRunCompleted(ctx, run)
	return run, nil
}

// fail records the failure in the reserved error field, checkpoints the
// partially-committed state for diagnosis and resumption, and halts.
func (e *Engine) fail(ctx context.Context, run *api.Run, state api.State, err error) (*api.Run, error) {
	state.Error = err.Error()
	_ = e.saveCheckpoint(ctx, state)

	run.Status = api.RunFailed
	run.State = state
	run.Err = err
	e.observer.OnRunFailed(ctx, run, err)
	return run, err
}

func (e *Engine) saveCheckpoint(ctx context.Context, state api.State) error {
	if e.checkpoints == nil {
		return nil
	}
	return e.checkpoints.Save(ctx, e.graph.name, state)
}

func (e *Engine) executeNode(ctx context.Context, run *api.Run, n *node, state api.State, invocations *atomic.Int64) (api.State, error) {
	if len(n.stages) == 1 {
		stage := n.stages[0]
		output, docs, err := e.invoke(ctx, run, stage, state, invocations)
		if err != nil {
			return api.State{}, err
		}
		next := state.Apply(output)
		if err := e.storeDocuments(ctx, stage.Name, docs); err != nil {
			return api.State{}, err
		}
		return next, nil
	}
	return e.executeGroup(ctx, run, n, state, invocations)
}

// executeGroup fans the member stages out concurrently. The join waits for
// every member; the first fatal error cancels siblings cooperatively (they
// notice at stage entry and between retry attempts). The merged output
// commits atomically after the join, exactly like a single stage's output.
func (e *Engine) executeGroup(ctx context.Context, run *api.Run, n *node, state api.State, invocations *atomic.Int64) (api.State, error) {
	grp, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	merged := make(map[string]json.RawMessage)
	var docs []api.Document

	snapshot := state.Clone()
	for _, stg := range n.stages {
		grp.Go(func() error {
			output, newDocs, err := e.invoke(gctx, run, stg, snapshot, invocations)
			if err != nil {
				return err
			}
			mu.Lock()
			maps.Copy(merged, output)
			docs = append(docs, newDocs...)
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return api.State{}, err
	}

	next := state.Apply(merged)
	if err := e.storeDocuments(ctx, n.name, docs); err != nil {
		return api.State{}, err
	}
	return next, nil
}

// invoke runs one stage with its retry policy and returns the output to be
// committed by the caller. Every attempt counts against the run's global
// invocation budget.
func (e *Engine) invoke(ctx context.Context, run *api.Run, stage api.StageDefinition, snapshot api.State, invocations *atomic.Int64) (map[string]json.RawMessage, []api.Document, error) {
	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	if stage.Retry != nil {
		if stage.Retry.MaxAttempts > 0 {
			maxAttempts = stage.Retry.MaxAttempts
		}
		backoff = stage.Retry.InitialBackoff
		maxBackoff = stage.Retry.MaxBackoff
		multiplier = stage.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if n := invocations.Add(1); int(n) > e.maxInvocations {
			// Undo so the reported invocation count covers only attempts
			// that actually ran.
			invocations.Add(-1)
			return nil, nil, &api.RunawayError{Limit: e.maxInvocations}
		}

		res := e.attempt(ctx, run, stage, snapshot, attempt)

		switch res.Status {
		case api.StatusSuccess:
			return res.Output, res.NewDocuments, nil

		case api.StatusRetryable:
			if attempt == maxAttempts {
				return nil, nil, &api.StageError{Stage: stage.Name, Attempts: attempt, Detail: res.ErrorDetail}
			}
			if backoff > 0 {
				delay := backoff
				if maxBackoff > 0 && delay > maxBackoff {
					delay = maxBackoff
				}
				select {
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				case <-time.After(delay):
				}
				next := time.Duration(float64(backoff) * multiplier)
				if maxBackoff > 0 && next > maxBackoff {
					backoff = maxBackoff
				} else {
					backoff = next
				}
			}

		case api.StatusFatal:
			return nil, nil, &api.StageError{Stage: stage.Name, Attempts: attempt, Detail: res.ErrorDetail}

		default:
			return nil, nil, &api.StageError{Stage: stage.Name, Attempts: attempt, Detail: fmt.Sprintf("unknown result status %q", res.Status)}
		}
	}

	// Unreachable: the retry loop always returns.
	return nil, nil, &api.StageError{Stage: stage.Name, Detail: "retry loop exited without a result"}
}

// attempt performs a single invocation: assemble retrieval context, call
// the stage with an isolated state snapshot, report to the observer. An
// assembly failure is a retryable attempt failure; the retrieval boundary
// has already retried transient backend errors internally.
func (e *Engine) attempt(ctx context.Context, run *api.Run, stage api.StageDefinition, snapshot api.State, attempt int) api.StageResult {
	var docs []api.Document
	if e.assembler != nil && stage.Query != nil {
		var (
			q   api.RetrievalQuery
			err error
		)
		docs, q, err = e.assembler.Assemble(ctx, stage, snapshot)
		if err != nil {
			return api.Retryable(fmt.Sprintf("assemble context: %v", err))
		}
		e.observer.OnRetrieval(ctx, run, stage.Name, q, len(docs))
	}

	e.observer.OnStageStart(ctx, run, stage.Name, attempt)
	start := time.Now()
	res := stage.Fn(ctx, snapshot.Clone(), docs)
	e.observer.OnStageCompleted(ctx, run, stage.Name, attempt, res.Status, time.Since(start))
	return res
}

func (e *Engine) storeDocuments(ctx context.Context, nodeName string, docs []api.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if e.sink == nil {
		return &api.StageError{Stage: nodeName, Attempts: 1, Detail: "stage returned documents but no document sink is configured"}
	}
	for _, doc := range docs {
		if _, err := e.sink.Add(ctx, doc); err != nil {
			// A duplicate id means the document is already stored, typically
			// from an earlier run against the same durable store.
			if errors.Is(err, api.ErrDuplicateID) {
				continue
			}
			return &api.StageError{Stage: nodeName, Attempts: 1, Detail: fmt.Sprintf("store document: %v", err)}
		}
	}
	return nil
}
