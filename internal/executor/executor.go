// Package executor runs one benchmark run against one revision: the setup,
// prepare, command and cleanup lifecycle around a hyperfine invocation.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/models"
)

const (
	// killDelay is how long a cancelled subprocess group gets to exit.
	killDelay = 5 * time.Second
	// cleanupGrace bounds the cleanup step after an interrupt.
	cleanupGrace = 30 * time.Second

	defaultShell = "sh"
)

// Document is the outcome of one hyperfine invocation.
type Document struct {
	Results     []json.RawMessage `json:"results"`
	Invocation  []string          `json:"invocation"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Mean is the mean time of the first result, when hyperfine reported one.
func (d *Document) Mean() (float64, bool) {
	if len(d.Results) == 0 {
		return 0, false
	}
	var r struct {
		Mean *float64 `json:"mean"`
	}
	if err := json.Unmarshal(d.Results[0], &r); err != nil || r.Mean == nil {
		return 0, false
	}
	return *r.Mean, true
}

type Executor struct {
	Binary string
	Dir    string
	// Stdout and Stderr receive hyperfine's own output when set.
	Stdout io.Writer
	Stderr io.Writer
	Log    logrus.FieldLogger
}

func New(binary, dir string, log logrus.FieldLogger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{Binary: binary, Dir: dir, Log: log}
}

// Execute benchmarks run at rev, which is nil for unversioned runs. The
// working tree is expected to be at rev already.
func (e *Executor) Execute(ctx context.Context, run *models.RunDefinition, rev *models.Revision, params models.BenchmarkParams) (*Document, error) {
	log := e.Log.WithField("run", run.Name)
	if rev != nil {
		log = log.WithField("revision", rev.ID())
	}
	env := environ(run, rev)
	shell := stepShell(run.EffectiveShell(params))

	if run.Setup != "" {
		log.WithField("step", "setup").Debug("Running setup")
		if err := e.step(ctx, shell, env, "setup", substitute(run.Setup, rev)); err != nil {
			return nil, err
		}
	}
	if run.Cleanup != "" {
		defer func() {
			cctx := ctx
			if ctx.Err() != nil {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), cleanupGrace)
				defer cancel()
			}
			log.WithField("step", "cleanup").Debug("Running cleanup")
			if err := e.step(cctx, shell, env, "cleanup", substitute(run.Cleanup, rev)); err != nil {
				log.WithError(err).Warn("Cleanup failed")
			}
		}()
	}

	doc, err := e.benchmark(ctx, log, run, rev, params, env)
	if err != nil {
		return nil, err
	}

	for _, a := range run.Annotations {
		out, err := e.capture(ctx, shell, env, substitute(a.Command, rev))
		if err != nil {
			log.WithError(err).WithField("annotation", a.Key).Warn("Annotation failed")
			continue
		}
		if doc.Annotations == nil {
			doc.Annotations = make(map[string]string, len(run.Annotations))
		}
		doc.Annotations[a.Key] = out
	}
	return doc, nil
}

func (e *Executor) benchmark(ctx context.Context, log logrus.FieldLogger, run *models.RunDefinition, rev *models.Revision, params models.BenchmarkParams, env []string) (*Document, error) {
	tmpFile, err := os.CreateTemp("", "hypcmp-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	_ = tmpFile.Close()
	defer func() { _ = os.Remove(tmpFile.Name()) }()

	args := BuildArgs(run, rev, params, tmpFile.Name())
	binary := e.Binary
	if params.Binary != "" {
		binary = params.Binary
	}
	log.WithField("args", args).Debug("Running benchmark tool")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = e.Dir
	cmd.Env = env
	cmd.Stdout = e.Stdout
	cmd.Stderr = &stderr
	if e.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.Stderr)
	}
	startGroup(cmd)

	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s interrupted: %w", filepath.Base(binary), ctx.Err())
		}
		toolErr := &ToolError{Binary: filepath.Base(binary), Command: run.Command, ExitCode: -1, Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
			toolErr.Stderr = tail(stderr.String(), stderrLines)
		}
		return nil, toolErr
	}

	results, err := readResults(tmpFile.Name())
	if err != nil {
		return nil, err
	}
	return &Document{Results: results, Invocation: append([]string{binary}, args...)}, nil
}

func readResults(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read export: %w", ErrBadOutput, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: export file is empty", ErrBadOutput)
	}

	var export struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: failed to parse export: %w", ErrBadOutput, err)
	}
	if len(export.Results) == 0 {
		return nil, fmt.Errorf("%w: no results in export", ErrBadOutput)
	}
	return export.Results, nil
}

// BuildArgs translates the run and shared parameters into hyperfine flags.
// The revision reaches the command through the commit parameter, or by
// textual substitution when a parameter scan rules out parameter lists.
func BuildArgs(run *models.RunDefinition, rev *models.Revision, params models.BenchmarkParams, exportPath string) []string {
	var args []string
	count := func(flag string, n int) {
		if n > 0 {
			args = append(args, flag, strconv.Itoa(n))
		}
	}
	count("--warmup", params.Warmup)
	count("--runs", params.Runs)
	count("--min-runs", params.MinRuns)
	count("--max-runs", params.MaxRuns)

	switch shell := run.EffectiveShell(params); shell {
	case "":
	case models.ShellNone:
		args = append(args, "-N")
	default:
		args = append(args, "--shell", shell)
	}

	for _, l := range params.ParameterLists {
		args = append(args, "--parameter-list", l.Name, strings.Join(l.Values, ","))
	}
	if s := params.ParameterScan; s != nil {
		args = append(args, "--parameter-scan", s.Name, formatFloat(s.Min), formatFloat(s.Max))
		if s.Step > 0 {
			args = append(args, "--parameter-step-size", formatFloat(s.Step))
		}
	}

	command := run.Command
	if rev != nil {
		if params.ParameterScan != nil || strings.Contains(rev.ID(), ",") {
			command = substitute(command, rev)
		} else {
			args = append(args, "--parameter-list", models.CommitParameter, rev.ID())
		}
	}
	if run.Prepare != "" {
		args = append(args, "--prepare", substitute(run.Prepare, rev))
	}

	args = append(args, params.Args...)
	args = append(args, "--export-json", exportPath, command)
	return args
}

func (e *Executor) step(ctx context.Context, shell, env []string, name, command string) error {
	cmd := e.shellCommand(ctx, shell, env, command)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	stepErr := &StepError{Step: name, Command: command, ExitCode: -1, Output: tail(string(out), stderrLines), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stepErr.ExitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		stepErr.Err = ctx.Err()
	}
	return stepErr
}

func (e *Executor) capture(ctx context.Context, shell, env []string, command string) (string, error) {
	cmd := e.shellCommand(ctx, shell, env, command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%q: %w: %s", command, err, tail(stderr.String(), stderrLines))
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *Executor) shellCommand(ctx context.Context, shell, env []string, command string) *exec.Cmd {
	args := append(append([]string{}, shell[1:]...), "-c", command)
	cmd := exec.CommandContext(ctx, shell[0], args...)
	cmd.Dir = e.Dir
	cmd.Env = env
	startGroup(cmd)
	return cmd
}

// stepShell is the shell for setup, cleanup and annotations. They always
// need one, even when the timed command runs without.
func stepShell(shell string) []string {
	if shell == "" || shell == models.ShellNone {
		return []string{defaultShell}
	}
	return strings.Fields(shell)
}

func environ(run *models.RunDefinition, rev *models.Revision) []string {
	env := append(os.Environ(), "HYPCMP_RUN="+run.Name)
	if rev != nil {
		env = append(env, "HYPCMP_REVISION="+rev.ID(), "HYPCMP_COMMIT="+rev.Hash)
	}
	return env
}

// substitute replaces the commit placeholder with the revision identifier.
func substitute(s string, rev *models.Revision) string {
	if rev == nil {
		return s
	}
	return strings.ReplaceAll(s, "{"+models.CommitParameter+"}", rev.ID())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
