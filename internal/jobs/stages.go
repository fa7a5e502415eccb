package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tkoskine/stratum/pkg/api"
)

// State field names owned by the pipeline stages.
const (
	FieldJobData           = "job_data"
	FieldTechAnalysis      = "tech_analysis"
	FieldMarketReport      = "market_report"
	FieldAIImpact          = "ai_impact"
	FieldFinalReport       = "final_report"
	FieldRevisionRequested = "revision_requested"
	FieldRevisions         = "revisions"
)

// Pipeline holds the injected capabilities of the job market stages. The
// stages themselves stay pure: all I/O happens behind these interfaces and
// is surfaced through StageResult.
type Pipeline struct {
	// Search fetches postings during the collect stage.
	Search SearchClient

	// Completer, when set, adds model-written narratives to the market and
	// AI impact reports. Nil skips narratives; the reports stay complete.
	Completer api.Completer

	Roles     []string
	Locations []string
}

// Collect gathers postings for every role/location pair, deduplicates
// them, and emits one document per unique posting.
//
// When the state already holds a record set and the run was not force
// restarted, the existing set is reused and no search calls are made.
func (p *Pipeline) Collect(ctx context.Context, st api.State, _ []api.Document) api.StageResult {
	if st.Has(FieldJobData) && !st.Control.ForceRestart {
		raw := st.Fields[FieldJobData]
		return api.Success(map[string]json.RawMessage{FieldJobData: raw})
	}
	if p.Search == nil {
		return api.Fatal("no search client configured")
	}

	var records []JobRecord
	seen := make(map[string]bool)
	for _, role := range p.Roles {
		for _, location := range p.Locations {
			batch, err := p.Search.FetchRecords(ctx, role, location)
			if err != nil {
				return api.Retryable(fmt.Sprintf("search %q in %q: %v", role, location, err))
			}
			for _, rec := range batch {
				if rec.Location == "" {
					rec.Location = location
				}
				if seen[rec.Key()] {
					continue
				}
				seen[rec.Key()] = true
				records = append(records, rec)
			}
		}
	}
	if len(records) == 0 {
		return api.Fatal("no postings found for any role/location pair")
	}

	raw, err := api.MarshalField(records)
	if err != nil {
		return api.Fatal(fmt.Sprintf("encode records: %v", err))
	}
	result := api.Success(map[string]json.RawMessage{FieldJobData: raw})
	for _, rec := range records {
		result.NewDocuments = append(result.NewDocuments, postingDocument(rec))
	}
	return result
}

func postingDocument(rec JobRecord) api.Document {
	return api.Document{
		ID:   "posting:" + slug(rec.Key()),
		Text: rec.Title + " at " + rec.Company + ". " + rec.Description,
		Metadata: map[string]string{
			"kind":     "posting",
			"title":    rec.Title,
			"company":  rec.Company,
			"location": rec.Location,
		},
	}
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// TechAnalysis tallies skill, stack, trend, and education mentions across
// the collected postings and the retrieved documents.
func (p *Pipeline) TechAnalysis(_ context.Context, st api.State, docs []api.Document) api.StageResult {
	texts, err := postingTexts(st, docs)
	if err != nil {
		return api.Fatal(err.Error())
	}

	analysis := TechAnalysis{
		TechnicalSkills:       rankCounts(countMentions(skillKeywords, texts), 1),
		TechStacks:            rankCounts(countMentions(stackKeywords, texts), 1),
		EmergingTrends:        presentKeywords(trendKeywords, texts),
		EducationRequirements: rankCounts(countMentions(educationKeywords, texts), 1),
	}

	raw, err := api.MarshalField(analysis)
	if err != nil {
		return api.Fatal(fmt.Sprintf("encode analysis: %v", err))
	}
	result := api.Success(map[string]json.RawMessage{FieldTechAnalysis: raw})
	result.NewDocuments = append(result.NewDocuments, reportDocument("tech_analysis", raw))
	return result
}

// MarketReport computes salary statistics, hiring hot spots, and the
// remote share of the collected postings.
func (p *Pipeline) MarketReport(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
	records, ok, err := api.Field[[]JobRecord](st, FieldJobData)
	if err != nil {
		return api.Fatal(err.Error())
	}
	if !ok {
		return api.Fatal("job_data not collected yet")
	}

	report := MarketReport{
		Salaries:     salaryStats(records),
		TopLocations: topBy(records, func(r JobRecord) string { return r.Location }),
		TopCompanies: topBy(records, func(r JobRecord) string { return r.Company }),
		RemoteShare:  remoteShare(records),
	}

	if p.Completer != nil {
		narrative, err := p.Completer.Complete(ctx, marketPrompt(report, docs))
		if err != nil {
			return api.Retryable(fmt.Sprintf("market narrative: %v", err))
		}
		report.Narrative = narrative
	}

	raw, err := api.MarshalField(report)
	if err != nil {
		return api.Fatal(fmt.Sprintf("encode report: %v", err))
	}
	result := api.Success(map[string]json.RawMessage{FieldMarketReport: raw})
	result.NewDocuments = append(result.NewDocuments, reportDocument("market_report", raw))
	return result
}

// AIImpact measures how strongly AI shows up in the collected postings.
// Tool mentions are counted over the record set alone so the threshold
// below is exact; the retrieved documents only enrich the narrative.
//
// The first pass only reports tools mentioned in at least two postings.
// When the final report requests a revision, the pass is re-run with the
// threshold lowered to one so sparse signals still make the report.
func (p *Pipeline) AIImpact(ctx context.Context, st api.State, docs []api.Document) api.StageResult {
	records, ok, err := api.Field[[]JobRecord](st, FieldJobData)
	if err != nil {
		return api.Fatal(err.Error())
	}
	if !ok {
		return api.Fatal("job_data not collected yet")
	}
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		texts = append(texts, rec.Title+" "+rec.Description)
	}

	revised, _, err := api.Field[bool](st, FieldRevisionRequested)
	if err != nil {
		return api.Fatal(err.Error())
	}
	minMentions := 2
	if revised {
		minMentions = 1
	}

	aiRoles := 0
	for _, rec := range records {
		lower := strings.ToLower(rec.Title + " " + rec.Description)
		for _, kw := range aiRoleKeywords {
			if strings.Contains(lower, kw) {
				aiRoles++
				break
			}
		}
	}

	impact := AIImpact{
		AIRoleCount:  aiRoles,
		ToolMentions: rankCounts(countMentions(aiToolKeywords, texts), minMentions),
		Revised:      revised,
	}
	if len(records) > 0 {
		impact.AIRoleShare = float64(aiRoles) / float64(len(records))
	}

	if p.Completer != nil {
		narrative, err := p.Completer.Complete(ctx, impactPrompt(impact, docs))
		if err != nil {
			return api.Retryable(fmt.Sprintf("impact narrative: %v", err))
		}
		impact.Narrative = narrative
	}

	raw, err := api.MarshalField(impact)
	if err != nil {
		return api.Fatal(fmt.Sprintf("encode impact: %v", err))
	}
	docID := "ai_impact"
	if revised {
		docID = "ai_impact:revised"
	}
	result := api.Success(map[string]json.RawMessage{FieldAIImpact: raw})
	result.NewDocuments = append(result.NewDocuments, reportDocument(docID, raw))
	return result
}

// FinalReport synthesizes the upstream analyses and runs a completeness
// check. An incomplete report requests exactly one revision of the AI
// impact analysis; the second pass always terminates.
func (p *Pipeline) FinalReport(_ context.Context, st api.State, _ []api.Document) api.StageResult {
	records, ok, err := api.Field[[]JobRecord](st, FieldJobData)
	if err != nil || !ok {
		return api.Fatal("job_data not collected yet")
	}
	tech, ok, err := api.Field[TechAnalysis](st, FieldTechAnalysis)
	if err != nil || !ok {
		return api.Fatal("tech_analysis missing")
	}
	market, ok, err := api.Field[MarketReport](st, FieldMarketReport)
	if err != nil || !ok {
		return api.Fatal("market_report missing")
	}
	impact, ok, err := api.Field[AIImpact](st, FieldAIImpact)
	if err != nil || !ok {
		return api.Fatal("ai_impact missing")
	}

	report := FinalReport{
		TotalJobs:  len(records),
		AIJobs:     impact.AIRoleCount,
		RemotePct:  market.RemoteShare * 100,
		TopSkills:  head(tech.TechnicalSkills, 10),
		TopAITools: head(impact.ToolMentions, 10),
	}
	report.Complete = len(report.TopSkills) > 0 && len(report.TopAITools) > 0

	revisions, _, err := api.Field[int](st, FieldRevisions)
	if err != nil {
		return api.Fatal(err.Error())
	}
	requestRevision := !report.Complete && revisions == 0
	if requestRevision {
		revisions = 1
	}

	rawReport, err := api.MarshalField(report)
	if err != nil {
		return api.Fatal(fmt.Sprintf("encode final report: %v", err))
	}
	return api.Success(map[string]json.RawMessage{
		FieldFinalReport:       rawReport,
		FieldRevisionRequested: api.MustField(requestRevision),
		FieldRevisions:         api.MustField(revisions),
	})
}

// RevisionRequested is the edge condition for the self-correction loop
// from final_report back to ai_impact.
func RevisionRequested(st api.State) bool {
	requested, _, err := api.Field[bool](st, FieldRevisionRequested)
	return err == nil && requested
}

func postingTexts(st api.State, docs []api.Document) ([]string, error) {
	records, ok, err := api.Field[[]JobRecord](st, FieldJobData)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job_data not collected yet")
	}
	texts := make([]string, 0, len(records)+len(docs))
	for _, rec := range records {
		texts = append(texts, rec.Title+" "+rec.Description)
	}
	for _, doc := range docs {
		texts = append(texts, doc.Text)
	}
	return texts, nil
}

func reportDocument(name string, raw json.RawMessage) api.Document {
	return api.Document{
		ID:       "report:" + name,
		Text:     string(raw),
		Metadata: map[string]string{"kind": "report", "report": name},
	}
}

func salaryStats(records []JobRecord) SalaryStats {
	var salaries []float64
	for _, rec := range records {
		if rec.Salary > 0 {
			salaries = append(salaries, rec.Salary)
		}
	}
	if len(salaries) == 0 {
		return SalaryStats{}
	}
	sort.Float64s(salaries)
	sum := 0.0
	for _, s := range salaries {
		sum += s
	}
	mid := len(salaries) / 2
	median := salaries[mid]
	if len(salaries)%2 == 0 {
		median = (salaries[mid-1] + salaries[mid]) / 2
	}
	return SalaryStats{
		Average: sum / float64(len(salaries)),
		Median:  median,
		Min:     salaries[0],
		Max:     salaries[len(salaries)-1],
		Samples: len(salaries),
	}
}

func topBy(records []JobRecord, key func(JobRecord) string) []CountEntry {
	counts := make(map[string]int)
	for _, rec := range records {
		if k := key(rec); k != "" {
			counts[k]++
		}
	}
	return head(rankCounts(counts, 1), 10)
}

func remoteShare(records []JobRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	remote := 0
	for _, rec := range records {
		lower := strings.ToLower(rec.Location + " " + rec.Type + " " + rec.Description)
		if rec.Remote || strings.Contains(lower, "remote") {
			remote++
		}
	}
	return float64(remote) / float64(len(records))
}

func head(entries []CountEntry, n int) []CountEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func marketPrompt(report MarketReport, docs []api.Document) string {
	var b strings.Builder
	b.WriteString("Write a short job market narrative from these findings.\n")
	fmt.Fprintf(&b, "Remote share: %.0f%%. Salary samples: %d (median %.0f).\n",
		report.RemoteShare*100, report.Salaries.Samples, report.Salaries.Median)
	appendDocContext(&b, docs)
	return b.String()
}

func impactPrompt(impact AIImpact, docs []api.Document) string {
	var b strings.Builder
	b.WriteString("Write a short assessment of AI's impact on these roles.\n")
	fmt.Fprintf(&b, "AI roles: %d (%.0f%% of postings). Tools ranked: %d.\n",
		impact.AIRoleCount, impact.AIRoleShare*100, len(impact.ToolMentions))
	appendDocContext(&b, docs)
	return b.String()
}

func appendDocContext(b *strings.Builder, docs []api.Document) {
	if len(docs) == 0 {
		return
	}
	b.WriteString("Context:\n")
	for _, doc := range docs {
		text := doc.Text
		if len(text) > 500 {
			text = text[:500]
		}
		b.WriteString("- " + text + "\n")
	}
}
