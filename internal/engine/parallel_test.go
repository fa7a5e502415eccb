package engine

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tkoskine/stratum/pkg/api"
)

func groupDef(name string, group api.GroupDefinition) api.GraphDefinition {
	return api.GraphDefinition{
		Name:   name,
		Start:  group.Name,
		Groups: []api.GroupDefinition{group},
		Edges: []api.EdgeDefinition{
			{From: group.Name, To: api.EndNode},
		},
	}
}

// TestGroupJoinCommitsMergedOutput verifies that a parallel group commits
// the union of its member outputs atomically after the join.
func TestGroupJoinCommitsMergedOutput(t *testing.T) {
	t.Parallel()

	def := groupDef("group-join", api.GroupDefinition{
		Name: "analysis",
		Stages: []api.StageDefinition{
			{Name: "tech", Fn: succeedWith("tech", "stacks"), Outputs: []string{"tech"}},
			{Name: "market", Fn: succeedWith("market", "trends"), Outputs: []string{"market"}},
		},
	})
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, api.RunCompleted, run.Status)
	require.Equal(t, 2, run.Invocations)
	require.True(t, run.State.Has("tech"))
	require.True(t, run.State.Has("market"))
}

// TestGroupMembersSeeIsolatedSnapshots verifies that group members observe
// the pre-group state, never each other's uncommitted output.
func TestGroupMembersSeeIsolatedSnapshots(t *testing.T) {
	t.Parallel()

	sawSibling := atomic.Bool{}
	member := func(own, sibling string) api.StageFunc {
		return func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
			if st.Has(sibling) {
				sawSibling.Store(true)
			}
			time.Sleep(10 * time.Millisecond)
			return api.Success(map[string]json.RawMessage{own: api.MustField(own)})
		}
	}

	def := groupDef("group-isolation", api.GroupDefinition{
		Name: "pair",
		Stages: []api.StageDefinition{
			{Name: "left", Fn: member("left", "right"), Outputs: []string{"left"}},
			{Name: "right", Fn: member("right", "left"), Outputs: []string{"right"}},
		},
	})
	eng, err := New(def, Config{})
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, api.RunCompleted, run.Status)
	require.False(t, sawSibling.Load(), "members must not observe sibling output")
}

// TestGroupFatalCancelsSiblings verifies that a fatal member fails the
// whole node and that a retrying sibling notices the cancellation instead
// of sleeping out its backoff schedule.
func TestGroupFatalCancelsSiblings(t *testing.T) {
	t.Parallel()

	var siblingAttempts atomic.Int32
	def := groupDef("group-cancel", api.GroupDefinition{
		Name: "pair",
		Stages: []api.StageDefinition{
			{
				Name: "doomed",
				Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
					return api.Fatal("unrecoverable")
				},
				Outputs: []string{"doomed_out"},
			},
			{
				Name: "slow",
				Fn: func(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
					siblingAttempts.Add(1)
					return api.Retryable("keep trying")
				},
				Outputs: []string{"slow_out"},
				Retry: &api.RetryPolicy{
					MaxAttempts:    50,
					InitialBackoff: time.Hour,
				},
			},
		},
	})
	eng, err := New(def, Config{})
	require.NoError(t, err)

	start := time.Now()
	run, err := eng.Run(context.Background(), api.RunOptions{})
	require.Error(t, err)
	require.Equal(t, api.RunFailed, run.Status)
	require.Less(t, time.Since(start), 10*time.Second, "cancellation must interrupt the sibling's backoff")
	require.LessOrEqual(t, siblingAttempts.Load(), int32(2))

	var stageErr *api.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "doomed", stageErr.Stage)

	// Nothing from the failed group commits.
	require.False(t, run.State.Has("doomed_out"))
	require.False(t, run.State.Has("slow_out"))
}

// TestGroupOutputFieldOwnershipValidated verifies that two stages claiming
// the same field is a build-time error, inside or across groups.
func TestGroupOutputFieldOwnershipValidated(t *testing.T) {
	t.Parallel()

	def := groupDef("group-ownership", api.GroupDefinition{
		Name: "pair",
		Stages: []api.StageDefinition{
			{Name: "one", Fn: succeedWith("shared", 1), Outputs: []string{"shared"}},
			{Name: "two", Fn: succeedWith("shared", 2), Outputs: []string{"shared"}},
		},
	})
	_, err := Compile(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), `field "shared"`)
}
