package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/hypcmp/internal/executor/executortest"
	"github.com/mpataki/hypcmp/internal/models"
)

func TestBuildArgs(t *testing.T) {
	v1 := &models.Revision{Hash: "1111111111111111111111111111111111111111", Abbrev: "1111111", Ref: "v1"}
	detached := &models.Revision{Hash: "2222222222222222222222222222222222222222", Abbrev: "2222222"}

	cases := []struct {
		name   string
		run    models.RunDefinition
		rev    *models.Revision
		params models.BenchmarkParams
		want   []string
	}{
		{
			name: "plain",
			run:  models.RunDefinition{Name: "a", Command: "echo hi"},
			want: []string{"--export-json", "out.json", "echo hi"},
		},
		{
			name: "counts and shell",
			run:  models.RunDefinition{Name: "a", Command: "echo hi", Prepare: "sync"},
			params: models.BenchmarkParams{
				Warmup: 2, Runs: 10, Shell: "bash", Args: []string{"--style", "basic"},
			},
			want: []string{
				"--warmup", "2", "--runs", "10", "--shell", "bash",
				"--prepare", "sync", "--style", "basic",
				"--export-json", "out.json", "echo hi",
			},
		},
		{
			name:   "run shell overrides shared one",
			run:    models.RunDefinition{Name: "a", Command: "./bench", Shell: models.ShellNone},
			params: models.BenchmarkParams{Shell: "bash", MinRuns: 3, MaxRuns: 5},
			want:   []string{"--min-runs", "3", "--max-runs", "5", "-N", "--export-json", "out.json", "./bench"},
		},
		{
			name: "revision as parameter",
			run:  models.RunDefinition{Name: "a", Command: "git show {commit}", Prepare: "make {commit}"},
			rev:  v1,
			params: models.BenchmarkParams{
				ParameterLists: []models.ParameterList{{Name: "size", Values: []string{"1", "10"}}},
			},
			want: []string{
				"--parameter-list", "size", "1,10",
				"--parameter-list", "commit", "v1",
				"--prepare", "make v1",
				"--export-json", "out.json", "git show {commit}",
			},
		},
		{
			name: "revision substituted under a scan",
			run:  models.RunDefinition{Name: "a", Command: "run --rev {commit} -n {n}"},
			rev:  detached,
			params: models.BenchmarkParams{
				ParameterScan: &models.ParameterScan{Name: "n", Min: 1, Max: 4, Step: 0.5},
			},
			want: []string{
				"--parameter-scan", "n", "1", "4", "--parameter-step-size", "0.5",
				"--export-json", "out.json", "run --rev 2222222 -n {n}",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildArgs(&tc.run, tc.rev, tc.params, "out.json")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(executortest.Hyperfine(t), dir, log), dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestExecute_Unversioned(t *testing.T) {
	e, _ := newTestExecutor(t)

	doc, err := e.Execute(context.Background(), &models.RunDefinition{Name: "hello", Command: "echo hi"}, nil, models.BenchmarkParams{})
	require.NoError(t, err)

	require.Len(t, doc.Results, 1)
	assert.JSONEq(t, `{"command": "echo hi", "mean": 0.25, "stddev": 0.01, "times": [0.24, 0.26]}`, string(doc.Results[0]))
	assert.Equal(t, e.Binary, doc.Invocation[0])
	assert.Equal(t, "echo hi", doc.Invocation[len(doc.Invocation)-1])
	mean, ok := doc.Mean()
	assert.True(t, ok)
	assert.InDelta(t, 0.25, mean, 1e-9)
	assert.Nil(t, doc.Annotations)
}

func TestExecute_Lifecycle(t *testing.T) {
	e, dir := newTestExecutor(t)
	run := &models.RunDefinition{
		Name:    "steps",
		Setup:   `echo "setup $HYPCMP_RUN $HYPCMP_REVISION" >> steps.log`,
		Prepare: "echo prepare >> steps.log",
		Command: "echo command {commit} >> steps.log",
		Cleanup: "echo cleanup {commit} >> steps.log",
		Annotations: []models.Annotation{
			{Key: "rev", Command: "echo {commit}"},
			{Key: "broken", Command: "exit 1"},
			{Key: "pwd", Command: "pwd"},
		},
	}
	rev := &models.Revision{Hash: "abcdef0123456789abcdef0123456789abcdef01", Abbrev: "abcdef0", Ref: "v1"}

	doc, err := e.Execute(context.Background(), run, rev, models.BenchmarkParams{})
	require.NoError(t, err)

	assert.Equal(t, []string{"setup steps v1", "prepare", "command v1", "cleanup v1"}, readLines(t, filepath.Join(dir, "steps.log")))
	wantDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(doc.Annotations["pwd"])
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
	assert.Equal(t, "v1", doc.Annotations["rev"])
	assert.NotContains(t, doc.Annotations, "broken")
}

func TestExecute_SetupFailure(t *testing.T) {
	e, dir := newTestExecutor(t)
	run := &models.RunDefinition{
		Name:    "s",
		Setup:   "echo nope; exit 7",
		Command: "echo command >> steps.log",
		Cleanup: "echo cleanup >> steps.log",
	}

	_, err := e.Execute(context.Background(), run, nil, models.BenchmarkParams{})
	require.ErrorIs(t, err, ErrStepFailed)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "setup", stepErr.Step)
	assert.Equal(t, 7, stepErr.ExitCode)
	assert.Equal(t, "nope", stepErr.Output)
	assert.Empty(t, readLines(t, filepath.Join(dir, "steps.log")))
}

func TestExecute_ToolFailure(t *testing.T) {
	e, dir := newTestExecutor(t)
	t.Setenv("FAKE_HYPERFINE_MODE", "fail")
	run := &models.RunDefinition{Name: "f", Command: "false", Cleanup: "echo cleanup >> steps.log"}

	_, err := e.Execute(context.Background(), run, nil, models.BenchmarkParams{})
	require.ErrorIs(t, err, ErrToolFailed)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Contains(t, toolErr.Stderr, "non-zero exit code")
	assert.Contains(t, err.Error(), `"false"`)
	assert.Equal(t, []string{"cleanup"}, readLines(t, filepath.Join(dir, "steps.log")), "cleanup runs after a failed benchmark")
}

func TestExecute_BadOutput(t *testing.T) {
	for _, mode := range []string{"empty", "garbage"} {
		t.Run(mode, func(t *testing.T) {
			e, _ := newTestExecutor(t)
			t.Setenv("FAKE_HYPERFINE_MODE", mode)

			_, err := e.Execute(context.Background(), &models.RunDefinition{Name: "b", Command: "true"}, nil, models.BenchmarkParams{})
			assert.ErrorIs(t, err, ErrBadOutput)
		})
	}
}

func TestExecute_MissingTool(t *testing.T) {
	e, _ := newTestExecutor(t)
	params := models.BenchmarkParams{Binary: filepath.Join(t.TempDir(), "no-such-hyperfine")}

	_, err := e.Execute(context.Background(), &models.RunDefinition{Name: "m", Command: "true"}, nil, params)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, -1, toolErr.ExitCode)
	assert.ErrorIs(t, err, ErrToolFailed)
}

func TestExecute_CleanupFailureIsIgnored(t *testing.T) {
	e, _ := newTestExecutor(t)
	run := &models.RunDefinition{Name: "c", Command: "true", Cleanup: "exit 1"}

	doc, err := e.Execute(context.Background(), run, nil, models.BenchmarkParams{})
	require.NoError(t, err)
	assert.Len(t, doc.Results, 1)
}

func TestExecute_Cancel(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, &models.RunDefinition{Name: "slow", Command: "sleep 30"}, nil, models.BenchmarkParams{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDocument_Mean(t *testing.T) {
	doc := &Document{}
	_, ok := doc.Mean()
	assert.False(t, ok)

	doc.Results = append(doc.Results, []byte(`{"command": "x"}`))
	_, ok = doc.Mean()
	assert.False(t, ok)
}

func TestTail(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, strings.Repeat("x", i))
	}
	got := strings.Split(tail(strings.Join(lines, "\n")+"\n", 3), "\n")
	assert.Equal(t, []string{"...", lines[27], lines[28], lines[29]}, got)
}
