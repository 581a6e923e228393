package benchfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/hypcmp/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "bench.yaml", `
label: nightly
output: out/results.json
hyperfine:
  warmup: 3
  runs: 10
  shell: bash
  parameter_lists:
    threads: [1, 2, 4]
    mode: [fast, slow]
  args: ["--style", "basic"]
hyperfine_params: ["--time-unit", "millisecond"]
run:
  zeta:
    command: make -j{threads}
    setup: ./configure
    prepare: make clean
    cleanup: rm -rf build
    commits: ["v1", "v2"]
    annotations:
      compiler: cc --version | head -1
      host: uname -n
  alpha:
    command: echo hi
    shell: none
`)

	bench, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nightly", bench.Label)
	assert.Equal(t, "out/results.json", bench.Output)
	assert.Equal(t, models.AllScopeRepository, bench.AllScope)
	assert.Equal(t, 3, bench.Params.Warmup)
	assert.Equal(t, 10, bench.Params.Runs)
	assert.Equal(t, []string{"--style", "basic", "--time-unit", "millisecond"}, bench.Params.Args)

	wantLists := []models.ParameterList{
		{Name: "threads", Values: []string{"1", "2", "4"}},
		{Name: "mode", Values: []string{"fast", "slow"}},
	}
	if diff := cmp.Diff(wantLists, bench.Params.ParameterLists); diff != "" {
		t.Errorf("parameter lists mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, bench.Runs, 2)
	// Runs keep file order, not alphabetical order.
	assert.Equal(t, "zeta", bench.Runs[0].Name)
	assert.Equal(t, "alpha", bench.Runs[1].Name)

	zeta := bench.Runs[0]
	assert.Equal(t, "make -j{threads}", zeta.Command)
	assert.Equal(t, "./configure", zeta.Setup)
	assert.Equal(t, "make clean", zeta.Prepare)
	assert.Equal(t, "rm -rf build", zeta.Cleanup)
	assert.Equal(t, []string{"v1", "v2"}, zeta.Revisions.Tokens)
	assert.Equal(t, []models.Annotation{
		{Key: "compiler", Command: "cc --version | head -1"},
		{Key: "host", Command: "uname -n"},
	}, zeta.Annotations)

	alpha := bench.Runs[1]
	assert.True(t, alpha.Revisions.Empty())
	assert.Equal(t, models.ShellNone, alpha.Shell)
	assert.True(t, bench.Versioned())
}

func TestLoad_DefaultOutput(t *testing.T) {
	path := writeFile(t, "bench.yml", `
run:
  hello:
    command: echo hi
`)

	bench, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultOutput, bench.Output)
	assert.False(t, bench.Versioned())
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "bench.jsonc", `{
  // comments and trailing commas are fine
  "output": "r.json",
  "hyperfine": {"warmup": 1, "parameter_scan": {"name": "n", "min": 1, "max": 5, "step": 2}},
  "run": {
    "second": {"command": "sleep 0.{n}", "commits": ["--since=v1", "--before=v3"]},
    "first": {"command": "true"},
  },
}`)

	bench, err := Load(path)
	require.NoError(t, err)

	require.Len(t, bench.Runs, 2)
	assert.Equal(t, "second", bench.Runs[0].Name)
	assert.Equal(t, "first", bench.Runs[1].Name)
	assert.Equal(t, models.Selectors{Since: "v1", Before: "v3"}, bench.Runs[0].Revisions.Selectors)
	assert.Equal(t, &models.ParameterScan{Name: "n", Min: 1, Max: 5, Step: 2}, bench.Params.ParameterScan)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bench.yaml", "run: [unterminated")

	_, err := Load(path)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, path, cfgErr.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_CollectsProblems(t *testing.T) {
	path := writeFile(t, "bench.yaml", `
all_scope: everything
hyperfine:
  min_runs: 10
  max_runs: 2
run:
  broken:
    commits: ["--all", "--tags", "--bogus"]
  empty:
    command: "  "
`)

	_, err := Load(path)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)

	want := []string{
		`run "broken": commits: unknown selector "--bogus"`,
		`run "broken": commits: --all, --branches, --tags and --since/--before cannot be combined`,
		`all_scope must be "repository" or "branch", got "everything"`,
		`hyperfine.min_runs (10) is greater than max_runs (2)`,
		`run "broken" must have a command`,
		`run "empty" must have a command`,
	}
	if diff := cmp.Diff(want, cfgErr.Problems); diff != "" {
		t.Errorf("problems mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, err.Error(), path)
}

func TestParseCommits(t *testing.T) {
	cases := []struct {
		name     string
		commits  []string
		want     models.RevisionSpec
		problems []string
	}{
		{
			name: "empty",
		},
		{
			name:    "tokens",
			commits: []string{"main", "v1.0", "abc1234"},
			want:    models.RevisionSpec{Tokens: []string{"main", "v1.0", "abc1234"}},
		},
		{
			name:    "selectors and tokens are both kept",
			commits: []string{"--tags", "main"},
			want:    models.RevisionSpec{Tokens: []string{"main"}, Selectors: models.Selectors{Tags: true}},
		},
		{
			name:    "closed range",
			commits: []string{"--since=c1", "--before=c3"},
			want:    models.RevisionSpec{Selectors: models.Selectors{Since: "c1", Before: "c3"}},
		},
		{
			name:     "since without value",
			commits:  []string{"--since"},
			problems: []string{"--since requires a value, as in --since=<ref>"},
		},
		{
			name:     "before twice",
			commits:  []string{"--before=a", "--before=b"},
			want:     models.RevisionSpec{Selectors: models.Selectors{Before: "a"}},
			problems: []string{"--before given more than once"},
		},
		{
			name:     "range mixed with branches",
			commits:  []string{"--branches", "--since=v1"},
			want:     models.RevisionSpec{Selectors: models.Selectors{Branches: true, Since: "v1"}},
			problems: []string{"--all, --branches, --tags and --since/--before cannot be combined"},
		},
		{
			name:     "value on flag",
			commits:  []string{"--all=yes"},
			problems: []string{"--all does not take a value"},
		},
		{
			name:     "blank entry",
			commits:  []string{" "},
			problems: []string{"empty commit entry"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, problems := ParseCommits(tc.commits)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("spec mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tc.problems, problems)
		})
	}
}
