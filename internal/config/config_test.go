package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoadMissingFileReturnsDefaults verifies both the empty path and the
// nonexistent path fall back to defaults.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestLoadOverridesDefaults verifies partial files override only what
// they mention.
func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_stage_invocations: 20
retry:
  max_attempts: 5
  initial_backoff: 1s
retrieval:
  top_k: 8
search:
  roles: ["SRE"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.MaxStageInvocations)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, time.Second, cfg.Retry.InitialBackoff.Std())
	require.Equal(t, 8, cfg.Retrieval.TopK)
	require.Equal(t, []string{"SRE"}, cfg.Search.Roles)

	// Untouched sections keep their defaults.
	require.Equal(t, Default().Retry.MaxBackoff, cfg.Retry.MaxBackoff)
	require.Equal(t, Default().Store.Path, cfg.Store.Path)
	require.Equal(t, Default().Search.Locations, cfg.Search.Locations)
}

// TestLoadRejectsMalformedYAML pins the error path.
func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
