// Package revision expands revision specifications into concrete,
// chronologically ordered commits.
package revision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/hypcmp/internal/models"
)

var (
	ErrNotFound     = errors.New("revision not found")
	ErrAmbiguous    = errors.New("ambiguous abbreviated hash")
	ErrInvalidRange = errors.New("invalid revision range")
)

// ResolutionError reports which part of a revision specification failed.
type ResolutionError struct {
	Token string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Token, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// A Commit is a commit as reported by a History.
type Commit struct {
	Hash   string
	Abbrev string
	Time   time.Time
}

// A Ref is a named pointer (branch or tag) to a commit.
type Ref struct {
	Name   string
	Commit Commit
}

// History is the read-only view of a repository that resolution needs.
// Lists are returned oldest first.
type History interface {
	// Resolve maps a branch, tag, full or abbreviated hash to a commit.
	// It fails with ErrNotFound or ErrAmbiguous.
	Resolve(ctx context.Context, token string) (Commit, error)
	Commits(ctx context.Context, scope models.AllScope) ([]Commit, error)
	Branches(ctx context.Context) ([]Ref, error)
	Tags(ctx context.Context) ([]Ref, error)
	Head(ctx context.Context) (Commit, error)
	// Range returns the commits on the path from since to before, both
	// included. A nil since starts at the root.
	Range(ctx context.Context, since *Commit, before Commit) ([]Commit, error)
	IsAncestor(ctx context.Context, ancestor, descendant Commit) (bool, error)
}
