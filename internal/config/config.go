// Package config loads the runtime configuration for the stratum CLI from
// an optional YAML file with sensible defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration.
type Config struct {
	// MaxStageInvocations bounds total stage invocations per run.
	MaxStageInvocations int `yaml:"max_stage_invocations"`

	Retry     RetryConfig     `yaml:"retry"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Backend   BackendConfig   `yaml:"backend"`
}

// Duration wraps time.Duration so YAML values like "500ms" or "5s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetryConfig is the default retry policy for stages that call external
// services.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
}

// RetrievalConfig tunes the retriever.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	EmbeddingDim   int     `yaml:"embedding_dim"`
}

// StoreConfig selects persistence. An empty Path keeps everything in
// memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig drives the collection stage.
type SearchConfig struct {
	Roles     []string `yaml:"roles"`
	Locations []string `yaml:"locations"`
}

// BackendConfig points at the embedding/completion HTTP backend. Empty
// URLs select the built-in local embedder and skip narrative generation.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	EmbedModel     string `yaml:"embed_model"`
	CompleteModel  string `yaml:"complete_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		MaxStageInvocations: 50,
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: Duration(500 * time.Millisecond),
			MaxBackoff:     Duration(5 * time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			SemanticWeight: 0.5,
			LexicalWeight:  0.5,
			EmbeddingDim:   256,
		},
		Store: StoreConfig{Path: "stratum.db"},
		Search: SearchConfig{
			Roles:     []string{"Software Engineer", "AI Engineer", "Data Scientist"},
			Locations: []string{"United States", "Europe"},
		},
		Backend: BackendConfig{
			EmbedModel:     "nomic-embed-text",
			CompleteModel:  "gpt-4",
			TimeoutSeconds: 60,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
