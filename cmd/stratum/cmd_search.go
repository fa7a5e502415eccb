package main

import (
	"fmt"

	"github.com/spf13/cobra"

	stratum "github.com/tkoskine/stratum"
	"github.com/tkoskine/stratum/internal/index"
	"github.com/tkoskine/stratum/internal/persistence"
	"github.com/tkoskine/stratum/internal/retrieve"
	"github.com/tkoskine/stratum/pkg/api"
)

var searchFlags struct {
	mode string
	topK int
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the stored documents directly",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.mode, "mode", "hybrid", "Search mode: semantic, lexical, or hybrid")
	f.IntVar(&searchFlags.topK, "top-k", 5, "Number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	embedder := buildEmbedder(cfg)
	if embedder == nil {
		embedder = stratum.NewHashingEmbedder(stratum.DefaultEmbeddingDim)
	}
	svc := retrieve.New(store, index.New(embedder.Dimension()), embedder,
		retrieve.WithWeights(hybridWeights(cfg.Retrieval)))
	if err := svc.Reindex(cmd.Context()); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}

	docs, err := svc.Retrieve(cmd.Context(), api.RetrievalQuery{
		Text: args[0],
		TopK: searchFlags.topK,
		Mode: api.SearchMode(searchFlags.mode),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "no matching documents")
		return nil
	}
	for i, doc := range docs {
		text := doc.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, doc.ID, text)
	}
	return nil
}
