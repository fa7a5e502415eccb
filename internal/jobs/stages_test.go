package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tkoskine/stratum/pkg/api"
)

// fakeSearch serves canned records per role and counts calls.
type fakeSearch struct {
	records map[string][]JobRecord
	calls   int
	err     error
}

func (f *fakeSearch) FetchRecords(ctx context.Context, query, location string) ([]JobRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[query], nil
}

func stateWithRecords(t *testing.T, records []JobRecord) api.State {
	t.Helper()
	st := api.NewState()
	raw, err := api.MarshalField(records)
	require.NoError(t, err)
	st.Fields[FieldJobData] = raw
	return st
}

func samplePostings() []JobRecord {
	return []JobRecord{
		{
			Title:       "Machine Learning Engineer",
			Company:     "Acme",
			Location:    "United States",
			Description: "Build models with Python, PyTorch and TensorFlow on AWS. Remote friendly. Master degree preferred.",
			Salary:      150000,
		},
		{
			Title:       "Backend Engineer",
			Company:     "Globex",
			Location:    "Europe",
			Description: "Go services with Docker and Kubernetes, PyTorch inference serving.",
			Salary:      100000,
		},
		{
			Title:       "Data Scientist",
			Company:     "Initech",
			Location:    "United States",
			Description: "SQL and Python analysis, remote position.",
			Salary:      120000,
		},
	}
}

// TestCollectDeduplicatesAcrossSearches verifies the
// company/title/location key collapses overlapping search results and
// that each unique posting becomes a document.
func TestCollectDeduplicatesAcrossSearches(t *testing.T) {
	t.Parallel()

	dup := JobRecord{Title: "AI Engineer", Company: "Acme", Location: "United States", Description: "LLM work"}
	search := &fakeSearch{records: map[string][]JobRecord{
		"AI Engineer":   {dup, dup},
		"Data Engineer": {dup, {Title: "Data Engineer", Company: "Globex", Description: "pipelines"}},
	}}
	p := &Pipeline{Search: search, Roles: []string{"AI Engineer", "Data Engineer"}, Locations: []string{"United States"}}

	res := p.Collect(context.Background(), api.NewState(), nil)
	require.Equal(t, api.StatusSuccess, res.Status)
	require.Equal(t, 2, search.calls)

	var records []JobRecord
	st := api.NewState().Apply(res.Output)
	records, ok, err := api.Field[[]JobRecord](st, FieldJobData)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, records, 2)
	require.Len(t, res.NewDocuments, 2)
	require.Equal(t, "posting", res.NewDocuments[0].Metadata["kind"])

	// A record without its own location inherits the search location.
	require.Equal(t, "United States", records[1].Location)
}

// TestCollectSearchFailureIsRetryable verifies the stage classifies
// backend failures instead of halting the run outright.
func TestCollectSearchFailureIsRetryable(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{err: errors.New("rate limited")}
	p := &Pipeline{Search: search, Roles: []string{"r"}, Locations: []string{"l"}}

	res := p.Collect(context.Background(), api.NewState(), nil)
	require.Equal(t, api.StatusRetryable, res.Status)
	require.Contains(t, res.ErrorDetail, "rate limited")
}

// TestCollectReusesExistingRecords verifies the stage-local cache: with
// records already in state and no force restart, no search happens and no
// documents are re-emitted.
func TestCollectReusesExistingRecords(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{}
	p := &Pipeline{Search: search, Roles: []string{"r"}, Locations: []string{"l"}}

	st := stateWithRecords(t, samplePostings())
	res := p.Collect(context.Background(), st, nil)
	require.Equal(t, api.StatusSuccess, res.Status)
	require.Zero(t, search.calls)
	require.Empty(t, res.NewDocuments)

	st.Control.ForceRestart = true
	search.records = map[string][]JobRecord{"r": {{Title: "t", Company: "c", Description: "d"}}}
	res = p.Collect(context.Background(), st, nil)
	require.Equal(t, api.StatusSuccess, res.Status)
	require.Equal(t, 1, search.calls, "force restart bypasses the cache")
}

// TestTechAnalysisRanksKeywords verifies deterministic keyword tallies
// ordered by count then name.
func TestTechAnalysisRanksKeywords(t *testing.T) {
	t.Parallel()

	p := &Pipeline{}
	st := stateWithRecords(t, samplePostings())

	res := p.TechAnalysis(context.Background(), st, nil)
	require.Equal(t, api.StatusSuccess, res.Status)

	analysis, _, err := api.Field[TechAnalysis](api.NewState().Apply(res.Output), FieldTechAnalysis)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, e := range analysis.TechnicalSkills {
		counts[e.Name] = e.Count
	}
	require.Equal(t, 2, counts["python"])
	require.Equal(t, 1, counts["docker"])
	require.Equal(t, 1, counts["kubernetes"])

	require.Len(t, res.NewDocuments, 1)
	require.Equal(t, "report:tech_analysis", res.NewDocuments[0].ID)

	// Same input, same output.
	again := p.TechAnalysis(context.Background(), st, nil)
	require.Equal(t, res.Output, again.Output)
}

// TestMarketReportStatistics verifies salary stats, remote share, and
// location/company rankings.
func TestMarketReportStatistics(t *testing.T) {
	t.Parallel()

	p := &Pipeline{}
	st := stateWithRecords(t, samplePostings())

	res := p.MarketReport(context.Background(), st, nil)
	require.Equal(t, api.StatusSuccess, res.Status)

	report, _, err := api.Field[MarketReport](api.NewState().Apply(res.Output), FieldMarketReport)
	require.NoError(t, err)

	require.Equal(t, 3, report.Salaries.Samples)
	require.InDelta(t, 123333.33, report.Salaries.Average, 0.01)
	require.Equal(t, 120000.0, report.Salaries.Median)
	require.Equal(t, 100000.0, report.Salaries.Min)
	require.Equal(t, 150000.0, report.Salaries.Max)

	// Two of three postings mention remote work.
	require.InDelta(t, 2.0/3.0, report.RemoteShare, 1e-9)

	require.Equal(t, "United States", report.TopLocations[0].Name)
	require.Equal(t, 2, report.TopLocations[0].Count)
}

// TestAIImpactRevisionThreshold verifies the two-pass threshold: tools
// with a single mention appear only in the revised analysis.
func TestAIImpactRevisionThreshold(t *testing.T) {
	t.Parallel()

	p := &Pipeline{}
	st := stateWithRecords(t, samplePostings())

	res := p.AIImpact(context.Background(), st, nil)
	require.Equal(t, api.StatusSuccess, res.Status)
	impact, _, err := api.Field[AIImpact](api.NewState().Apply(res.Output), FieldAIImpact)
	require.NoError(t, err)

	require.False(t, impact.Revised)
	require.Equal(t, 2, impact.AIRoleCount, "ML engineer and data scientist postings")
	tools := map[string]int{}
	for _, e := range impact.ToolMentions {
		tools[e.Name] = e.Count
	}
	require.Equal(t, 2, tools["pytorch"])
	require.NotContains(t, tools, "tensorflow", "single mentions are below the first-pass threshold")

	// Revised pass lowers the threshold to one.
	st.Fields[FieldRevisionRequested] = api.MustField(true)
	res = p.AIImpact(context.Background(), st, nil)
	impact, _, err = api.Field[AIImpact](api.NewState().Apply(res.Output), FieldAIImpact)
	require.NoError(t, err)
	require.True(t, impact.Revised)
	require.Equal(t, "report:ai_impact:revised", res.NewDocuments[0].ID)
	tools = map[string]int{}
	for _, e := range impact.ToolMentions {
		tools[e.Name] = e.Count
	}
	require.Equal(t, 1, tools["tensorflow"], "revised pass keeps single mentions")
}

// TestFinalReportRequestsOneRevision verifies the bounded self-correction
// handshake.
func TestFinalReportRequestsOneRevision(t *testing.T) {
	t.Parallel()

	p := &Pipeline{}
	st := stateWithRecords(t, samplePostings())
	st.Fields[FieldTechAnalysis] = api.MustField(TechAnalysis{
		TechnicalSkills: []CountEntry{{Name: "python", Count: 2}},
	})
	st.Fields[FieldMarketReport] = api.MustField(MarketReport{RemoteShare: 0.5})
	st.Fields[FieldAIImpact] = api.MustField(AIImpact{AIRoleCount: 1})

	// No ranked AI tools: the report is incomplete, so a revision is
	// requested exactly once.
	res := p.FinalReport(context.Background(), st, nil)
	require.Equal(t, api.StatusSuccess, res.Status)
	next := st.Apply(res.Output)
	require.True(t, RevisionRequested(next))

	report, _, err := api.Field[FinalReport](next, FieldFinalReport)
	require.NoError(t, err)
	require.False(t, report.Complete)

	// Second pass with the impact revised but still empty: no new request.
	res = p.FinalReport(context.Background(), next, nil)
	final := next.Apply(res.Output)
	require.False(t, RevisionRequested(final))

	// A complete report never requests a revision.
	st.Fields[FieldAIImpact] = api.MustField(AIImpact{
		AIRoleCount:  1,
		ToolMentions: []CountEntry{{Name: "pytorch", Count: 2}},
	})
	res = p.FinalReport(context.Background(), st, nil)
	require.False(t, RevisionRequested(st.Apply(res.Output)))
	report, _, err = api.Field[FinalReport](st.Apply(res.Output), FieldFinalReport)
	require.NoError(t, err)
	require.True(t, report.Complete)
	require.Equal(t, 3, report.TotalJobs)
	require.InDelta(t, 50.0, report.RemotePct, 1e-9)
}

// TestRenderMarkdownSections verifies the renderer emits present sections
// and tolerates missing ones.
func TestRenderMarkdownSections(t *testing.T) {
	t.Parallel()

	st := api.NewState()
	st.Fields[FieldFinalReport] = api.MustField(FinalReport{
		TotalJobs: 3, AIJobs: 2, RemotePct: 66.7, Complete: true,
		TopSkills: []CountEntry{{Name: "python", Count: 2}},
	})
	st.Fields[FieldMarketReport] = api.MustField(MarketReport{
		Salaries:    SalaryStats{Average: 120000, Median: 120000, Min: 100000, Max: 150000, Samples: 3},
		RemoteShare: 0.667,
	})

	md, err := RenderMarkdown(st)
	require.NoError(t, err)
	require.Contains(t, md, "# Job Market Analysis")
	require.Contains(t, md, "## Overview")
	require.Contains(t, md, "python (2)")
	require.Contains(t, md, "## Market Dynamics")
	require.NotContains(t, md, "## AI Impact", "missing fields render no section")

	// An empty state still renders the header.
	md, err = RenderMarkdown(api.NewState())
	require.NoError(t, err)
	require.Contains(t, md, "# Job Market Analysis")
}
