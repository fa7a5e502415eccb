package jobs

import (
	stratum "github.com/tkoskine/stratum"
	"github.com/tkoskine/stratum/pkg/api"
)

// GraphName keys the pipeline's checkpoint.
const GraphName = "job-market"

// BuildGraph assembles the pipeline graph:
//
//	collect -> [tech_analysis | market_report] -> ai_impact -> final_report -> END
//	                                              ^                        |
//	                                              +--- revision requested --+
//
// The two analysis stages own disjoint fields and run as a parallel group.
// The revision edge is taken at most once; final_report guarantees the
// second pass never requests another.
func BuildGraph(p *Pipeline, topK int, retry api.RetryPolicy) (api.GraphDefinition, error) {
	return stratum.NewGraph(GraphName).
		Start("collect").
		Stage("collect", p.Collect,
			stratum.Outputs(FieldJobData),
			stratum.WithRetry(retry)).
		Group("analysis",
			stratum.StageDef("tech_analysis", p.TechAnalysis,
				stratum.Outputs(FieldTechAnalysis),
				stratum.WithQuery("technical skills frameworks and tools required", topK, stratum.ModeHybrid)),
			stratum.StageDef("market_report", p.MarketReport,
				stratum.Outputs(FieldMarketReport),
				stratum.WithRetry(retry),
				stratum.WithQuery("salary location remote work hiring trends", topK, stratum.ModeHybrid)),
		).
		Stage("ai_impact", p.AIImpact,
			stratum.Outputs(FieldAIImpact),
			stratum.WithRetry(retry),
			stratum.WithQuery("artificial intelligence machine learning adoption", topK, stratum.ModeSemantic)).
		Stage("final_report", p.FinalReport,
			stratum.Outputs(FieldFinalReport, FieldRevisionRequested, FieldRevisions)).
		Edge("collect", "analysis").
		Edge("analysis", "ai_impact").
		Edge("ai_impact", "final_report").
		EdgeWhen("final_report", "ai_impact", RevisionRequested).
		Edge("final_report", stratum.EndNode).
		Build()
}
