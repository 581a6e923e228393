package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HYPCMP_DATA_DIR", dir)
	t.Setenv("HYPCMP_HYPERFINE", "/opt/bin/hyperfine")
	t.Setenv("HYPCMP_LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.DBPath)
	assert.Equal(t, "/opt/bin/hyperfine", cfg.Hyperfine)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestNew_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".hypcmp"), cfg.DataDir)
	assert.Equal(t, "hyperfine", cfg.Hyperfine)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{DataDir: dir}

	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, dir)
}
