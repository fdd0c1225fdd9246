package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreSane(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, ".jnkn/jnkn.db", cfg.Storage.Path)
	assert.InDelta(t, 0.3, cfg.Scan.MinConfidence, 0.001)
	assert.Contains(t, cfg.Stitcher.Rules, "env_to_infra")
	assert.Contains(t, cfg.Scan.Exclude, "**/node_modules/**")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.ProjectName = "payments-platform"
	cfg.Scan.MinConfidence = 0.55
	cfg.Risk.CriticalPaths = []string{"infra/**"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "payments-platform", loaded.ProjectName)
	assert.InDelta(t, 0.55, loaded.Scan.MinConfidence, 0.001)
	assert.Equal(t, []string{"infra/**"}, loaded.Risk.CriticalPaths)
}

func TestEnvOverrideStorageType(t *testing.T) {
	t.Setenv("JNKN_STORAGE_TYPE", "postgres")
	t.Setenv("JNKN_POSTGRES_DSN", "postgres://localhost/jnkn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/jnkn", cfg.Storage.PostgresDSN)
}
