package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	stratum "github.com/tkoskine/stratum"
	"github.com/tkoskine/stratum/internal/config"
	"github.com/tkoskine/stratum/internal/jobs"
	"github.com/tkoskine/stratum/internal/llm"
	"github.com/tkoskine/stratum/pkg/api"
)

var runFlags struct {
	forceRestart bool
	outPath      string
	quiet        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the analysis pipeline, resuming from any checkpoint",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runFlags.forceRestart, "force-restart", false, "Discard the checkpoint and recompute everything")
	f.StringVarP(&runFlags.outPath, "out", "o", "report.md", "Markdown report output path")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "Suppress per-stage log output")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	def, err := jobs.BuildGraph(pipeline, cfg.Retrieval.TopK, retryPolicy(cfg.Retry))
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	metrics := &api.BasicMetrics{}
	observers := []api.Observer{metrics}
	if !runFlags.quiet {
		observers = append(observers, stratum.NewLoggingObserver(slog.Default()))
	}

	opts := []stratum.Option{
		stratum.WithObserver(stratum.NewCompositeObserver(observers...)),
		stratum.WithMaxInvocations(cfg.MaxStageInvocations),
		stratum.WithHybridWeights(hybridWeights(cfg.Retrieval)),
		stratum.WithDefaultTopK(cfg.Retrieval.TopK),
	}
	if emb := buildEmbedder(cfg); emb != nil {
		opts = append(opts, stratum.WithEmbedder(emb))
	}

	eng, err := stratum.NewSQLiteEngine(db, def, opts...)
	if err != nil {
		return err
	}

	run, runErr := eng.Run(cmd.Context(), stratum.RunOptions{ForceRestart: runFlags.forceRestart})
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, jobs.Summarize(run))
	if runErr != nil {
		return runErr
	}

	markdown, err := jobs.RenderMarkdown(run.State)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(runFlags.outPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(out, "report written to %s\n", runFlags.outPath)
	return nil
}

// buildPipeline wires the external capabilities: the search backend is
// mandatory, the completion backend optional.
func buildPipeline(cfg config.Config) (*jobs.Pipeline, error) {
	search, err := jobs.NewSerpAPIClient(os.Getenv("SERPAPI_API_KEY"))
	if err != nil {
		return nil, fmt.Errorf("SERPAPI_API_KEY must be set (directly or via .env)")
	}

	p := &jobs.Pipeline{
		Search:    search,
		Roles:     cfg.Search.Roles,
		Locations: cfg.Search.Locations,
	}
	if base := backendURL(cfg); base != "" && cfg.Backend.CompleteModel != "" {
		client := llm.NewClient(base, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
		p.Completer = llm.NewCompleter(client, cfg.Backend.CompleteModel)
	}
	return p, nil
}

// buildEmbedder returns the backend embedder, or nil to use the built-in
// local hashing embedder.
func buildEmbedder(cfg config.Config) api.Embedder {
	base := backendURL(cfg)
	if base == "" || cfg.Backend.EmbedModel == "" {
		return nil
	}
	client := llm.NewClient(base, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
	return llm.NewEmbedder(client, cfg.Backend.EmbedModel, cfg.Retrieval.EmbeddingDim)
}

func backendURL(cfg config.Config) string {
	return envOr("STRATUM_BACKEND_URL", cfg.Backend.BaseURL)
}
