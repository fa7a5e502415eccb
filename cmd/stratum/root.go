// stratum runs the job market analysis pipeline: collect postings, analyze
// technology and market trends in parallel, assess AI impact, and render a
// final report. Runs checkpoint after every stage and resume where they
// left off.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	dbPath     string
}

var rootCmd = &cobra.Command{
	Use:   "stratum",
	Short: "Job market analysis pipeline with checkpointed resumption",
	Long: "Stratum collects job postings and derives layered analysis reports\n" +
		"through a resumable workflow graph backed by a local document store.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	// A .env file is optional; the environment always wins.
	_ = godotenv.Load()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Path to YAML config (defaults apply when omitted)")
	pf.StringVar(&rootFlags.dbPath, "db", "", "SQLite database path (overrides config; empty uses config value)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
