package models

// ShellNone asks hyperfine to run commands without an intermediate shell.
const ShellNone = "none"

// RunDefinition is one named, timed command from the benchmark file.
type RunDefinition struct {
	Name        string
	Command     string
	Setup       string
	Prepare     string
	Cleanup     string
	Shell       string
	Revisions   RevisionSpec
	Annotations []Annotation
}

// EffectiveShell returns the run's shell, falling back to the shared one.
func (r *RunDefinition) EffectiveShell(params BenchmarkParams) string {
	if r.Shell != "" {
		return r.Shell
	}
	return params.Shell
}

// Annotation attaches the trimmed stdout of Command to the result under Key.
type Annotation struct {
	Key     string
	Command string
}

// CommitParameter is the placeholder that carries the revision into
// command templates, as in "git log -1 {commit}".
const CommitParameter = "commit"
