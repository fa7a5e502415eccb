// Package jobs implements the job market analysis pipeline on top of the
// stratum engine: collection, technology and market analysis, AI impact
// assessment, and the final report.
package jobs

import "context"

// JobRecord is a single job posting as returned by the search backend.
type JobRecord struct {
	Title       string  `json:"title"`
	Company     string  `json:"company_name"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Type        string  `json:"type,omitempty"`
	Salary      float64 `json:"salary,omitempty"`
	Remote      bool    `json:"remote,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// Key identifies a posting for deduplication across overlapping searches.
func (r JobRecord) Key() string {
	return r.Company + "|" + r.Title + "|" + r.Location
}

// SearchClient fetches job postings for a role/location pair. Implemented
// by the SerpAPI-style HTTP client in cmd/stratum and by fixtures in tests.
type SearchClient interface {
	FetchRecords(ctx context.Context, query, location string) ([]JobRecord, error)
}

// CountEntry is a named tally, ordered by count descending then name
// ascending wherever it appears in a report.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SalaryStats summarizes the salaries present in the collected postings.
// Postings without a salary are excluded.
type SalaryStats struct {
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// TechAnalysis is the output of the tech_analysis stage.
type TechAnalysis struct {
	TechnicalSkills       []CountEntry `json:"technical_skills"`
	TechStacks            []CountEntry `json:"tech_stacks"`
	EmergingTrends        []string     `json:"emerging_trends"`
	EducationRequirements []CountEntry `json:"education_requirements"`
}

// MarketReport is the output of the market_report stage.
type MarketReport struct {
	Salaries     SalaryStats  `json:"salary_trends"`
	TopLocations []CountEntry `json:"location_analysis"`
	TopCompanies []CountEntry `json:"company_insights"`
	RemoteShare  float64      `json:"remote_work_share"`
	Narrative    string       `json:"narrative,omitempty"`
}

// AIImpact is the output of the ai_impact stage.
type AIImpact struct {
	AIRoleCount  int          `json:"ai_role_count"`
	AIRoleShare  float64      `json:"ai_role_share"`
	ToolMentions []CountEntry `json:"ai_tool_adoption"`
	Revised      bool         `json:"revised,omitempty"`
	Narrative    string       `json:"narrative,omitempty"`
}

// FinalReport is the output of the final_report stage.
type FinalReport struct {
	TotalJobs  int          `json:"total_jobs"`
	AIJobs     int          `json:"ai_jobs"`
	RemotePct  float64      `json:"remote_pct"`
	TopSkills  []CountEntry `json:"top_skills"`
	TopAITools []CountEntry `json:"top_ai_tools"`
	Complete   bool         `json:"complete"`
	Summary    string       `json:"summary,omitempty"`
}
