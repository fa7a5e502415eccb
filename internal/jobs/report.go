package jobs

import (
	"fmt"
	"strings"

	"github.com/tkoskine/stratum/pkg/api"
)

// RenderMarkdown formats the pipeline's committed state as a markdown
// report. Sections whose field is missing are omitted rather than failing,
// so a partial state from a halted run still renders usefully.
func RenderMarkdown(st api.State) (string, error) {
	var b strings.Builder
	b.WriteString("# Job Market Analysis\n")

	if report, ok, err := api.Field[FinalReport](st, FieldFinalReport); err != nil {
		return "", err
	} else if ok {
		b.WriteString("\n## Overview\n\n")
		fmt.Fprintf(&b, "- Postings analyzed: %d\n", report.TotalJobs)
		fmt.Fprintf(&b, "- AI-related roles: %d\n", report.AIJobs)
		fmt.Fprintf(&b, "- Remote share: %.1f%%\n", report.RemotePct)
		if !report.Complete {
			b.WriteString("- Note: report is incomplete; some signals were too sparse to rank\n")
		}
		writeRanking(&b, "Top Skills", report.TopSkills)
		writeRanking(&b, "Top AI Tools", report.TopAITools)
	}

	if tech, ok, err := api.Field[TechAnalysis](st, FieldTechAnalysis); err != nil {
		return "", err
	} else if ok {
		b.WriteString("\n## Technology Landscape\n")
		writeRanking(&b, "Technical Skills", tech.TechnicalSkills)
		writeRanking(&b, "Tech Stacks", tech.TechStacks)
		writeRanking(&b, "Education Requirements", tech.EducationRequirements)
		if len(tech.EmergingTrends) > 0 {
			b.WriteString("\n### Emerging Trends\n\n")
			for _, trend := range tech.EmergingTrends {
				fmt.Fprintf(&b, "- %s\n", trend)
			}
		}
	}

	if market, ok, err := api.Field[MarketReport](st, FieldMarketReport); err != nil {
		return "", err
	} else if ok {
		b.WriteString("\n## Market Dynamics\n")
		if market.Salaries.Samples > 0 {
			b.WriteString("\n### Salaries\n\n")
			fmt.Fprintf(&b, "- Average: %.0f (n=%d)\n", market.Salaries.Average, market.Salaries.Samples)
			fmt.Fprintf(&b, "- Median: %.0f\n", market.Salaries.Median)
			fmt.Fprintf(&b, "- Range: %.0f to %.0f\n", market.Salaries.Min, market.Salaries.Max)
		}
		writeRanking(&b, "Top Locations", market.TopLocations)
		writeRanking(&b, "Top Companies", market.TopCompanies)
		if market.Narrative != "" {
			b.WriteString("\n" + market.Narrative + "\n")
		}
	}

	if impact, ok, err := api.Field[AIImpact](st, FieldAIImpact); err != nil {
		return "", err
	} else if ok {
		b.WriteString("\n## AI Impact\n\n")
		fmt.Fprintf(&b, "- AI roles: %d (%.1f%% of postings)\n", impact.AIRoleCount, impact.AIRoleShare*100)
		if impact.Revised {
			b.WriteString("- Analysis revised after completeness check\n")
		}
		writeRanking(&b, "Tool Adoption", impact.ToolMentions)
		if impact.Narrative != "" {
			b.WriteString("\n" + impact.Narrative + "\n")
		}
	}

	return b.String(), nil
}

func writeRanking(b *strings.Builder, title string, entries []CountEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n", title)
	for _, e := range entries {
		fmt.Fprintf(b, "- %s (%d)\n", e.Name, e.Count)
	}
}

// Summarize renders a one-paragraph run outcome for the CLI.
func Summarize(run *api.Run) string {
	var b strings.Builder
	switch run.Status {
	case api.RunCompleted:
		fmt.Fprintf(&b, "run %s completed after %d stage invocations", run.ID, run.Invocations)
		if run.Resumed {
			b.WriteString(" (resumed from checkpoint)")
		}
		if report, ok, err := api.Field[FinalReport](run.State, FieldFinalReport); err == nil && ok {
			fmt.Fprintf(&b, "\njobs=%d ai_jobs=%d remote=%.1f%%", report.TotalJobs, report.AIJobs, report.RemotePct)
		}
	case api.RunFailed:
		fmt.Fprintf(&b, "run %s failed at stage %q: %v", run.ID, run.Node, run.Err)
		b.WriteString("\na checkpoint was saved; re-run to resume, or pass --force-restart to recompute")
	default:
		fmt.Fprintf(&b, "run %s is %s", run.ID, run.Status)
	}
	return b.String()
}
