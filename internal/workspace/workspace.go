// Package workspace wraps the git repository that benchmarks run in.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/models"
	"github.com/mpataki/hypcmp/internal/revision"
)

// logFormat is the git log format parsed by parseCommits.
const logFormat = "--format=%H%x09%h%x09%ct"

var shortHex = regexp.MustCompile(`^[0-9a-fA-F]{1,6}$`)

var ErrNotRepository = errors.New("not a git repository")

// Repo runs git commands against one repository.
type Repo struct {
	Dir string
	Log logrus.FieldLogger
}

var _ revision.History = (*Repo)(nil)

// Open returns the repository containing dir. It fails with
// ErrNotRepository when dir is outside any repository or git is missing.
func Open(ctx context.Context, dir string, log logrus.FieldLogger) (*Repo, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo path: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Repo{Dir: absDir, Log: log}
	top, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		var gerr *gitError
		if errors.Is(err, exec.ErrNotFound) || (errors.As(err, &gerr) && strings.Contains(gerr.stderr, "not a git repository")) {
			return nil, fmt.Errorf("%s is %w", absDir, ErrNotRepository)
		}
		return nil, fmt.Errorf("failed to open repository %s: %w", absDir, err)
	}
	r.Dir = top
	return r, nil
}

// gitError carries the stderr of a failed git command.
type gitError struct {
	args   []string
	err    error
	stderr string
}

func (e *gitError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.args, " "), e.err)
	if e.stderr != "" {
		msg += ": " + e.stderr
	}
	return msg
}

func (e *gitError) Unwrap() error { return e.err }

func (e *gitError) exitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// git runs a git command in the repository and returns its trimmed stdout.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	r.Log.WithField("args", args).Trace("git")

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &gitError{args: args, err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Dirty lists tracked files with staged or unstaged modifications.
// Untracked files do not block a checkout and are not reported.
func (r *Repo) Dirty(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return nil, err
	}

	var dirty []string
	for line := range strings.Lines(out) {
		line = strings.TrimRight(line, "\n")
		if len(line) > 3 {
			dirty = append(dirty, strings.TrimSpace(line[3:]))
		}
	}
	return dirty, nil
}

// Current returns the checked out branch, or the commit hash when HEAD is
// detached.
func (r *Repo) Current(ctx context.Context) (ref string, detached bool, err error) {
	if sym, err := r.git(ctx, "symbolic-ref", "-q", "--short", "HEAD"); err == nil {
		return sym, false, nil
	}
	hash, err := r.git(ctx, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", false, fmt.Errorf("bad HEAD: %w", err)
	}
	return hash, true, nil
}

// Checkout detaches HEAD at hash.
func (r *Repo) Checkout(ctx context.Context, hash string) error {
	_, err := r.git(ctx, "checkout", "-q", "--detach", hash, "--")
	return err
}

// Switch checks out ref, attaching HEAD when detached is false.
func (r *Repo) Switch(ctx context.Context, ref string, detached bool) error {
	if detached {
		return r.Checkout(ctx, ref)
	}
	_, err := r.git(ctx, "checkout", "-q", ref, "--")
	return err
}

func (r *Repo) Resolve(ctx context.Context, token string) (revision.Commit, error) {
	if token == "" || strings.HasPrefix(token, "-") {
		return revision.Commit{}, revision.ErrNotFound
	}

	hash, err := r.git(ctx, "rev-parse", "--verify", token+"^{commit}")
	if err != nil {
		var gitErr *gitError
		if errors.As(err, &gitErr) && strings.Contains(gitErr.stderr, "ambiguous") {
			return revision.Commit{}, fmt.Errorf("%w: %s", revision.ErrAmbiguous, token)
		}
		if ctx.Err() != nil {
			return revision.Commit{}, ctx.Err()
		}
		return revision.Commit{}, revision.ErrNotFound
	}

	// git accepts four hex digits; anything under seven must be a ref.
	if shortHex.MatchString(token) && strings.HasPrefix(hash, strings.ToLower(token)) {
		refs, err := r.git(ctx, "for-each-ref", "--format=%(refname)", "refs/heads/"+token, "refs/tags/"+token)
		if err != nil {
			return revision.Commit{}, err
		}
		if refs == "" {
			return revision.Commit{}, fmt.Errorf("%w: abbreviated hash %s is shorter than %d characters",
				revision.ErrNotFound, token, revision.AbbrevLen)
		}
	}

	commits, err := r.lookup(ctx, []string{hash})
	if err != nil {
		return revision.Commit{}, err
	}
	return commits[hash], nil
}

func (r *Repo) Head(ctx context.Context) (revision.Commit, error) {
	return r.Resolve(ctx, "HEAD")
}

func (r *Repo) Commits(ctx context.Context, scope models.AllScope) ([]revision.Commit, error) {
	args := []string{"log", "--date-order", "--reverse", "--abbrev=7", logFormat}
	if scope == models.AllScopeBranch {
		args = append(args, "HEAD")
	} else {
		args = append(args, "--exclude=refs/stash", "--all")
	}
	out, err := r.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseCommits(out)
}

func (r *Repo) Branches(ctx context.Context) ([]revision.Ref, error) {
	return r.refs(ctx, "refs/heads")
}

func (r *Repo) Tags(ctx context.Context) ([]revision.Ref, error) {
	return r.refs(ctx, "refs/tags")
}

// refs lists the refs under prefix with the commits they point at.
// Annotated tags are peeled; refs to non-commit objects are skipped.
func (r *Repo) refs(ctx context.Context, prefix string) ([]revision.Ref, error) {
	out, err := r.git(ctx, "for-each-ref",
		"--format=%(refname:short)%09%(objectname)%09%(objecttype)%09%(*objectname)%09%(*objecttype)", prefix)
	if err != nil {
		return nil, err
	}

	type named struct{ name, hash string }
	var found []named
	var hashes []string
	for line := range strings.Lines(out) {
		f := strings.Split(strings.TrimRight(line, "\n"), "\t")
		if len(f) != 5 {
			continue
		}
		name, hash := f[0], f[1]
		if f[2] == "tag" {
			hash = f[3]
			if f[4] != "commit" {
				r.Log.WithField("ref", name).Debug("Skipping tag that does not point at a commit")
				continue
			}
		} else if f[2] != "commit" {
			continue
		}
		found = append(found, named{name, hash})
		hashes = append(hashes, hash)
	}
	if len(found) == 0 {
		return nil, nil
	}

	commits, err := r.lookup(ctx, hashes)
	if err != nil {
		return nil, err
	}
	refs := make([]revision.Ref, 0, len(found))
	for _, n := range found {
		refs = append(refs, revision.Ref{Name: n.name, Commit: commits[n.hash]})
	}
	return refs, nil
}

func (r *Repo) Range(ctx context.Context, since *revision.Commit, before revision.Commit) ([]revision.Commit, error) {
	args := []string{"log", "--date-order", "--reverse", "--abbrev=7", logFormat}
	if since == nil {
		args = append(args, before.Hash)
	} else {
		args = append(args, "--ancestry-path", since.Hash+".."+before.Hash)
	}
	out, err := r.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	commits, err := parseCommits(out)
	if err != nil {
		return nil, err
	}
	if since != nil {
		commits = append([]revision.Commit{*since}, commits...)
	}
	return commits, nil
}

func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant revision.Commit) (bool, error) {
	_, err := r.git(ctx, "merge-base", "--is-ancestor", ancestor.Hash, descendant.Hash)
	if err == nil {
		return true, nil
	}
	var gitErr *gitError
	if errors.As(err, &gitErr) && gitErr.exitCode() == 1 {
		return false, nil
	}
	return false, err
}

// lookup reads hash, abbreviation and committer time of the given commits.
func (r *Repo) lookup(ctx context.Context, hashes []string) (map[string]revision.Commit, error) {
	args := append([]string{"log", "--no-walk=unsorted", "--abbrev=7", logFormat}, hashes...)
	out, err := r.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	commits, err := parseCommits(out)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]revision.Commit, len(commits))
	for _, c := range commits {
		byHash[c.Hash] = c
	}
	for _, h := range hashes {
		if _, ok := byHash[h]; !ok {
			return nil, fmt.Errorf("git log did not report commit %s", h)
		}
	}
	return byHash, nil
}

func parseCommits(out string) ([]revision.Commit, error) {
	var commits []revision.Commit
	for line := range strings.Lines(out) {
		line = strings.TrimRight(line, "\n")
		if line == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != 3 {
			return nil, fmt.Errorf("unexpected git log line %q", line)
		}
		sec, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad commit time in %q: %w", line, err)
		}
		commits = append(commits, revision.Commit{Hash: f[0], Abbrev: f[1], Time: time.Unix(sec, 0).UTC()})
	}
	return commits, nil
}
