package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/models"
)

var (
	ErrDirtyTree      = errors.New("working tree is not clean")
	ErrCheckoutFailed = errors.New("checkout failed")
	ErrRestoreFailed  = errors.New("failed to restore original checkout")
)

// DirtyTreeError lists the tracked files with uncommitted changes. Untracked
// files are not checked; one that a revision would overwrite fails that
// revision's checkout with ErrCheckoutFailed.
type DirtyTreeError struct {
	Files []string
}

func (e *DirtyTreeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDirtyTree, strings.Join(e.Files, ", "))
}

func (e *DirtyTreeError) Unwrap() error { return ErrDirtyTree }

// Guard owns the working tree for the length of a session. The first
// Acquire verifies the tree is clean and records the checked out ref;
// the matching outermost Release puts it back.
type Guard struct {
	repo *Repo
	log  logrus.FieldLogger

	depth     int
	original  string
	detached  bool
	moved     bool
	checkouts int
}

func NewGuard(repo *Repo, log logrus.FieldLogger) *Guard {
	if log == nil {
		log = repo.Log
	}
	return &Guard{repo: repo, log: log}
}

// Checkouts reports how many revision checkouts the guard has performed.
func (g *Guard) Checkouts() int { return g.checkouts }

// Original is the ref captured by the outermost Acquire.
func (g *Guard) Original() string { return g.original }

func (g *Guard) Acquire(ctx context.Context) error {
	if g.depth > 0 {
		g.depth++
		return nil
	}

	dirty, err := g.repo.Dirty(ctx)
	if err != nil {
		return fmt.Errorf("failed to check working tree: %w", err)
	}
	if len(dirty) > 0 {
		return &DirtyTreeError{Files: dirty}
	}

	ref, detached, err := g.repo.Current(ctx)
	if err != nil {
		return err
	}
	g.original, g.detached, g.moved = ref, detached, false
	g.depth = 1
	g.log.WithFields(logrus.Fields{"ref": ref, "detached": detached}).Debug("Captured original checkout")
	return nil
}

// Release undoes one Acquire. The outermost release restores the
// original ref, even when ctx has been cancelled.
func (g *Guard) Release(ctx context.Context) error {
	if g.depth == 0 {
		return errors.New("release of a guard that is not held")
	}
	g.depth--
	if g.depth > 0 || !g.moved {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if err := g.repo.Switch(ctx, g.original, g.detached); err != nil {
		return fmt.Errorf("%w %s: %w", ErrRestoreFailed, g.original, err)
	}
	g.moved = false
	g.log.WithField("ref", g.original).Debug("Restored original checkout")
	return nil
}

// WithRevision runs body with rev checked out. A nil rev runs body against
// the current tree without touching it.
func (g *Guard) WithRevision(ctx context.Context, rev *models.Revision, body func() error) (err error) {
	if rev == nil {
		return body()
	}

	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if relErr := g.Release(ctx); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	g.moved = true
	if err := g.repo.Checkout(ctx, rev.Hash); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCheckoutFailed, rev.ID(), err)
	}
	g.checkouts++
	g.log.WithField("revision", rev.ID()).Debug("Checked out revision")

	return body()
}
