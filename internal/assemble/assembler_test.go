package assemble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tkoskine/stratum/pkg/api"
)

// recordingRetriever captures the query it was asked to resolve.
type recordingRetriever struct {
	got  api.RetrievalQuery
	docs []api.Document
}

func (r *recordingRetriever) Retrieve(ctx context.Context, q api.RetrievalQuery) ([]api.Document, error) {
	r.got = q
	return r.docs, nil
}

// TestRenderTemplate covers string fields, non-string fields, and unset
// placeholders.
func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	st := api.NewState()
	st.Fields["role"] = api.MustField("engineer")
	st.Fields["count"] = api.MustField(7)

	require.Equal(t,
		"skills for engineer among 7 postings",
		RenderTemplate("skills for {role} among {count} postings", st))

	require.Equal(t,
		"skills for ",
		RenderTemplate("skills for {missing}", st))

	require.Equal(t, "no placeholders", RenderTemplate("no placeholders", st))
}

// TestAssembleAppliesDefaults verifies the default top-k and mode.
func TestAssembleAppliesDefaults(t *testing.T) {
	t.Parallel()

	ret := &recordingRetriever{docs: []api.Document{{ID: "d"}}}
	asm := New(ret, 7)

	stage := api.StageDefinition{
		Name:  "analyze",
		Query: &api.QueryTemplate{Text: "skills for {role}"},
	}
	st := api.NewState()
	st.Fields["role"] = api.MustField("devops")

	docs, q, err := asm.Assemble(context.Background(), stage, st)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "skills for devops", q.Text)
	require.Equal(t, 7, q.TopK)
	require.Equal(t, api.ModeHybrid, q.Mode)
}

// TestAssembleExplicitQueryWins verifies declared top-k and mode pass
// through unchanged.
func TestAssembleExplicitQueryWins(t *testing.T) {
	t.Parallel()

	ret := &recordingRetriever{}
	asm := New(ret, 5)

	stage := api.StageDefinition{
		Name:  "analyze",
		Query: &api.QueryTemplate{Text: "q", TopK: 2, Mode: api.ModeLexical},
	}
	_, q, err := asm.Assemble(context.Background(), stage, api.NewState())
	require.NoError(t, err)
	require.Equal(t, 2, q.TopK)
	require.Equal(t, api.ModeLexical, q.Mode)
	require.Equal(t, q, ret.got)
}

// TestAssembleNoQueryIsNoop verifies stages without queries skip retrieval
// entirely.
func TestAssembleNoQueryIsNoop(t *testing.T) {
	t.Parallel()

	ret := &recordingRetriever{}
	asm := New(ret, 5)

	docs, q, err := asm.Assemble(context.Background(), api.StageDefinition{Name: "plain"}, api.NewState())
	require.NoError(t, err)
	require.Nil(t, docs)
	require.Zero(t, q)
	require.Zero(t, ret.got, "retriever must not be called")
}
