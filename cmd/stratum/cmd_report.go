package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkoskine/stratum/internal/jobs"
	"github.com/tkoskine/stratum/internal/persistence"
)

var reportFlags struct {
	outPath string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the markdown report from the saved checkpoint",
	Long: "Renders the last checkpointed pipeline state without running any\n" +
		"stages. A halted run's partial state renders the sections it has.",
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFlags.outPath, "out", "o", "", "Write to a file instead of stdout")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	state, ok, err := store.Load(cmd.Context(), jobs.GraphName)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return fmt.Errorf("no checkpoint in %s; run 'stratum run' first", cfg.Store.Path)
	}

	markdown, err := jobs.RenderMarkdown(state)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if reportFlags.outPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), markdown)
		return nil
	}
	if err := os.WriteFile(reportFlags.outPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", reportFlags.outPath)
	return nil
}
