package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	stratum "github.com/tkoskine/stratum"
	"github.com/tkoskine/stratum/internal/config"
	"github.com/tkoskine/stratum/pkg/api"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if rootFlags.dbPath != "" {
		cfg.Store.Path = rootFlags.dbPath
	}
	return cfg, nil
}

func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Store.Path, err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent stage commits.
	db.SetMaxOpenConns(1)
	return db, nil
}

func retryPolicy(cfg config.RetryConfig) api.RetryPolicy {
	return stratum.Retry(cfg.MaxAttempts).
		WithExponentialBackoff(cfg.InitialBackoff.Std(), 2.0, cfg.MaxBackoff.Std()).
		Policy()
}

func hybridWeights(cfg config.RetrievalConfig) api.HybridWeights {
	if cfg.SemanticWeight <= 0 && cfg.LexicalWeight <= 0 {
		return api.EqualWeights()
	}
	return api.HybridWeights{Semantic: cfg.SemanticWeight, Lexical: cfg.LexicalWeight}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
