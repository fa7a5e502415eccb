package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tkoskine/stratum/internal/persistence"
	"github.com/tkoskine/stratum/pkg/api"
)

func succeedWith(field string, v any) api.StageFunc {
	return func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
		return api.Success(map[string]json.RawMessage{field: api.MustField(v)})
	}
}

func linearDef(name string, stages ...api.StageDefinition) api.GraphDefinition {
	def := api.GraphDefinition{Name: name, Start: stages[0].Name, Stages: stages}
	for i := 0; i < len(stages)-1; i++ {
		def.Edges = append(def.Edges, api.EdgeDefinition{From: stages[i].Name, To: stages[i+1].Name})
	}
	def.Edges = append(def.Edges, api.EdgeDefinition{From: stages[len(stages)-1].Name, To: api.EndNode})
	return def
}

// TestRunLinearGraph verifies that a two-stage graph commits both outputs
// and reports the invocation count.
func TestRunLinearGraph(t *testing.T) {
	t.Parallel()

	def := linearDef("linear",
		api.StageDefinition{Name: "collect", Fn: succeedWith("records", 3), Outputs: []string{"records"}},
		api.StageDefinition{Name: "analyze", Fn: succeedWith("summary", "ok"), Outputs: []string{"summary"}},
	)
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, api.RunCompleted, run.Status)
	require.Equal(t, 2, run.Invocations)

	count, ok, err := api.Field[int](run.State, "records")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, count)
	require.True(t, run.State.Has("summary"))
}

// TestFatalStageHaltsRun verifies that a fatal result stops the walk
// before downstream stages and preserves the error in the state.
func TestFatalStageHaltsRun(t *testing.T) {
	t.Parallel()

	analyzed := false
	def := linearDef("fatal-halts",
		api.StageDefinition{
			Name: "collect",
			Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
				return api.Fatal("backend rejected the request")
			},
			Outputs: []string{"records"},
		},
		api.StageDefinition{
			Name: "analyze",
			Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
				analyzed = true
				return api.Success(nil)
			},
			Outputs: []string{"summary"},
		},
	)
	checkpoints := persistence.NewInMemoryStore()
	eng, err := New(def, Config{Checkpoints: checkpoints})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.Error(t, err)
	require.Equal(t, api.RunFailed, run.Status)
	require.Equal(t, "collect", run.Node)
	require.False(t, analyzed, "analyze must not run after a fatal collect")

	var stageErr *api.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "collect", stageErr.Stage)

	// The failure is checkpointed for diagnosis.
	st, ok, err := checkpoints.Load(context.Background(), "fatal-halts")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, st.Error)
}

// TestRetryBoundedByMaxAttempts verifies that a persistently retryable
// stage is attempted exactly MaxAttempts times and then fails the run.
func TestRetryBoundedByMaxAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	def := linearDef("retry-bound",
		api.StageDefinition{
			Name: "flaky",
			Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
				attempts++
				return api.Retryable("still down")
			},
			Outputs: []string{"out"},
			Retry:   &api.RetryPolicy{MaxAttempts: 3},
		},
	)
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.Error(t, err)
	require.Equal(t, api.RunFailed, run.Status)
	require.Equal(t, 3, attempts)

	var stageErr *api.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, 3, stageErr.Attempts)
	require.Contains(t, stageErr.Detail, "still down")
}

// TestRetryRecoversAfterTransientFailures verifies that retryable results
// followed by success commit normally.
func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	def := linearDef("retry-recovers",
		api.StageDefinition{
			Name: "flaky",
			Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
				attempts++
				if attempts < 3 {
					return api.Retryable("transient")
				}
				return api.Success(map[string]json.RawMessage{"out": api.MustField(attempts)})
			},
			Outputs: []string{"out"},
			Retry:   &api.RetryPolicy{MaxAttempts: 5},
		},
	)
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, api.RunCompleted, run.Status)
	require.Equal(t, 3, run.Invocations)
}

// TestRunawayGuard verifies that a cyclic graph cannot exceed the global
// invocation budget.
func TestRunawayGuard(t *testing.T) {
	t.Parallel()

	def := api.GraphDefinition{
		Name:  "runaway",
		Start: "spin",
		Stages: []api.StageDefinition{
			{Name: "spin", Fn: succeedWith("n", 1), Outputs: []string{"n"}},
		},
		Edges: []api.EdgeDefinition{
			{From: "spin", To: "spin"},
		},
	}
	eng, err := New(def, Config{MaxInvocations: 5})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.Error(t, err)
	require.Equal(t, api.RunFailed, run.Status)

	var runaway *api.RunawayError
	require.ErrorAs(t, err, &runaway)
	require.Equal(t, 5, runaway.Limit)
	require.Equal(t, 5, run.Invocations)
}

// TestNoViableTransitionDefense exercises the runtime defense against a
// node whose edges all decline. Compile rejects such graphs, so the test
// degrades one after construction.
func TestNoViableTransitionDefense(t *testing.T) {
	t.Parallel()

	def := linearDef("dead-end",
		api.StageDefinition{Name: "only", Fn: succeedWith("out", true), Outputs: []string{"out"}},
	)
	eng, err := New(def, Config{})
	require.NoError(t, err)

	never := func(api.State) bool { return false }
	n := eng.graph.nodes["only"]
	n.edges = []api.EdgeDefinition{{From: "only", To: api.EndNode, When: never}}

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.Error(t, err)
	require.Equal(t, api.RunFailed, run.Status)

	var nvt *api.NoViableTransitionError
	require.ErrorAs(t, err, &nvt)
	require.Equal(t, "only", nvt.Node)
}

// TestConditionalEdgesEvaluatedInOrder verifies that the first matching
// edge wins.
func TestConditionalEdgesEvaluatedInOrder(t *testing.T) {
	t.Parallel()

	visited := []string{}
	record := func(name string, field string) api.StageFunc {
		return func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
			visited = append(visited, name)
			return api.Success(map[string]json.RawMessage{field: api.MustField(true)})
		}
	}
	isSet := func(field string) api.Condition {
		return func(st api.State) bool { return st.Has(field) }
	}

	def := api.GraphDefinition{
		Name:  "ordered-edges",
		Start: "route",
		Stages: []api.StageDefinition{
			{Name: "route", Fn: record("route", "routed"), Outputs: []string{"routed"}},
			{Name: "a", Fn: record("a", "a_done"), Outputs: []string{"a_done"}},
			{Name: "b", Fn: record("b", "b_done"), Outputs: []string{"b_done"}},
		},
		Edges: []api.EdgeDefinition{
			{From: "route", To: "a", When: isSet("routed")},
			{From: "route", To: "b"},
			{From: "a", To: api.EndNode},
			{From: "b", To: api.EndNode},
		},
	}
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, api.RunCompleted, run.Status)
	require.Equal(t, []string{"route", "a"}, visited)
}

// TestContextCancellationStopsRun verifies that a cancelled context is
// noticed at stage entry.
func TestContextCancellationStopsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	def := linearDef("cancelled",
		api.StageDefinition{
			Name: "first",
			Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
				cancel()
				return api.Success(map[string]json.RawMessage{"a": api.MustField(1)})
			},
			Outputs: []string{"a"},
		},
		api.StageDefinition{Name: "second", Fn: succeedWith("b", 2), Outputs: []string{"b"}},
	)
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(ctx, api.RunOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, api.RunFailed, run.Status)
	require.True(t, run.State.Has("a"), "first stage's commit survives cancellation")
}
