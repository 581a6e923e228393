package executor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolFailed = errors.New("benchmark tool failed")
	ErrBadOutput  = errors.New("unusable benchmark tool output")
	ErrStepFailed = errors.New("step failed")
)

// stderrLines is how much of a failing command's output is kept in errors.
const stderrLines = 20

// ToolError is returned when hyperfine cannot be started or exits non-zero.
type ToolError struct {
	Binary   string
	Command  string
	ExitCode int // -1 when the tool never ran
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s could not be run: %v", e.Binary, e.Err)
	}
	msg := fmt.Sprintf("%s exited with status %d benchmarking %q", e.Binary, e.ExitCode, e.Command)
	if e.Stderr != "" {
		msg += ":\n" + e.Stderr
	}
	return msg
}

func (e *ToolError) Is(target error) bool { return target == ErrToolFailed }

func (e *ToolError) Unwrap() error { return e.Err }

// StepError is returned when the setup command fails.
type StepError struct {
	Step     string
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s command %q failed: %v", e.Step, e.Command, e.Err)
	if e.Output != "" {
		msg += ":\n" + e.Output
	}
	return msg
}

func (e *StepError) Is(target error) bool { return target == ErrStepFailed }

func (e *StepError) Unwrap() error { return e.Err }

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = append([]string{"..."}, lines[len(lines)-n:]...)
	}
	return strings.Join(lines, "\n")
}
