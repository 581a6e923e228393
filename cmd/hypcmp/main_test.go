package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/hypcmp/internal/executor/executortest"
	"github.com/mpataki/hypcmp/internal/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("HYPCMP_DATA_DIR", t.TempDir())
	t.Setenv("HYPCMP_HYPERFINE", executortest.Hyperfine(t))
	t.Setenv("HYPCMP_LOG_LEVEL", "error")

	dir := t.TempDir()
	config := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
label: cli
run:
  hello:
    command: echo hello
`), 0o644))
	return config
}

func TestRunAndHistory(t *testing.T) {
	config := setupCLI(t)
	dir := filepath.Dir(config)
	output := filepath.Join(t.TempDir(), "report.json")

	out, err := execute(t, "run", config, "-C", dir, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "cli/hello")
	assert.Contains(t, out, "Report:   "+output)

	r, err := report.Read(output)
	require.NoError(t, err)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, "cli/hello", r.Entries[0].Label)

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "cli")

	out, err = execute(t, "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1. cli/hello [complete] 250.0 ms")

	out, err = execute(t, "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session #1")

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestRootRunsConfigArgument(t *testing.T) {
	config := setupCLI(t)
	dir := filepath.Dir(config)

	out, err := execute(t, config, "-C", dir, "--no-history", "--label", "adhoc")
	require.NoError(t, err)
	assert.Contains(t, out, "adhoc/hello")
	assert.FileExists(t, filepath.Join(dir, "hypcmp.json"))

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestRunFailureExitsNonZero(t *testing.T) {
	config := setupCLI(t)
	t.Setenv("FAKE_HYPERFINE_MODE", "fail")

	out, err := execute(t, "run", config, "-C", filepath.Dir(config), "--no-history")
	require.ErrorIs(t, err, errSilent)
	assert.Contains(t, out, "failed")
}

func TestValidate(t *testing.T) {
	config := setupCLI(t)

	out, err := execute(t, "validate", config)
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "current working tree")
}

func TestValidate_BadConfig(t *testing.T) {
	setupCLI(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: {}\n"), 0o644))

	_, err := execute(t, "validate", path)
	require.Error(t, err)
}

func TestShow_InvalidID(t *testing.T) {
	setupCLI(t)
	_, err := execute(t, "show", "abc")
	require.ErrorContains(t, err, "invalid session ID")
}
