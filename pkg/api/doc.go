// Package api defines the public types of the stratum workflow and
// retrieval engine: workflow state, stage definitions and results, graph
// declarations, retrieval queries and documents, the error taxonomy, and
// the Observer used for logging and metrics.
//
// Most users import the root stratum package, which re-exports everything
// here; api exists so that internal packages and external integrations can
// share one vocabulary without import cycles.
package api
