// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Epoch is the committer time of the first commit made by a Repo.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type Repo struct {
	t   testing.TB
	Dir string
	n   int
}

// New initialises an empty repository on branch main, skipping the test
// when git is not installed.
func New(t testing.TB) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	r := &Repo{t: t, Dir: t.TempDir()}
	r.Git("init", "-q")
	r.Git("symbolic-ref", "HEAD", "refs/heads/main")
	return r
}

// Git runs a git command and returns its trimmed output, failing the test
// on error.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()
	return r.gitAt(Epoch, args...)
}

func (r *Repo) gitAt(when time.Time, args ...string) string {
	r.t.Helper()
	return r.run(when, "", args...)
}

// HashObject writes content to the object database as an object of kind
// and returns its hash. The content is stored as given.
func (r *Repo) HashObject(kind, content string) string {
	r.t.Helper()
	return r.run(Epoch, content, "hash-object", "-t", kind, "-w", "--stdin")
}

func (r *Repo) run(when time.Time, stdin string, args ...string) string {
	r.t.Helper()
	date := fmt.Sprintf("@%d +0000", when.Unix())
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_GLOBAL="+os.DevNull,
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=Bench",
		"GIT_AUTHOR_EMAIL=bench@example.com",
		"GIT_COMMITTER_NAME=Bench",
		"GIT_COMMITTER_EMAIL=bench@example.com",
		"GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_DATE="+date,
	)
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// Write creates or replaces a file in the working tree.
func (r *Repo) Write(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

// Commit writes name with content and commits it, one hour after the
// previous commit. It returns the full hash.
func (r *Repo) Commit(name, content string) string {
	r.t.Helper()
	r.Write(name, content)
	r.Git("add", name)
	when := Epoch.Add(time.Duration(r.n) * time.Hour)
	r.n++
	r.gitAt(when, "commit", "-q", "-m", fmt.Sprintf("change %d", r.n))
	return r.Git("rev-parse", "HEAD")
}

// Tag creates a lightweight tag at HEAD, or an annotated one with msg.
func (r *Repo) Tag(name string, msg ...string) {
	r.t.Helper()
	if len(msg) > 0 {
		r.Git("tag", "-a", name, "-m", msg[0])
		return
	}
	r.Git("tag", name)
}

// Head returns the checked out branch, or HEAD's hash when detached.
func (r *Repo) Head() string {
	r.t.Helper()
	cmd := exec.Command("git", "symbolic-ref", "-q", "--short", "HEAD")
	cmd.Dir = r.Dir
	if out, err := cmd.Output(); err == nil {
		return strings.TrimSpace(string(out))
	}
	return r.Git("rev-parse", "HEAD")
}
