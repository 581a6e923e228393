package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/hypcmp/internal/gittest"
	"github.com/mpataki/hypcmp/internal/models"
)

func (f *fixture) rev(hash string) *models.Revision {
	return &models.Revision{Hash: hash, Abbrev: hash[:7]}
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.git.Dir, "bench.txt"))
	require.NoError(t, err)
	return string(data)
}

func TestGuard_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := NewGuard(f.repo, quietLogger())

	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, "main", g.Original())

	var seen []string
	err := g.WithRevision(ctx, f.rev(f.c1), func() error {
		seen = append(seen, f.read(t))
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = g.WithRevision(ctx, f.rev(f.c2), func() error {
		seen = append(seen, f.read(t))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, f.c2, f.git.Git("rev-parse", "HEAD"), "nested release must not restore")

	require.NoError(t, g.Release(ctx))
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.Equal(t, "main", f.git.Head())
	assert.Equal(t, "three", f.read(t))
	assert.Equal(t, 2, g.Checkouts())
}

func TestGuard_RestoresDetachedHead(t *testing.T) {
	f := newFixture(t)
	f.git.Git("checkout", "-q", "--detach", f.c2)
	ctx := context.Background()
	g := NewGuard(f.repo, quietLogger())

	err := g.WithRevision(ctx, f.rev(f.c1), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, f.c2, f.git.Head())
}

func TestGuard_DirtyTree(t *testing.T) {
	f := newFixture(t)
	f.git.Write("bench.txt", "uncommitted")
	g := NewGuard(f.repo, quietLogger())

	ran := false
	err := g.WithRevision(context.Background(), f.rev(f.c1), func() error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, ErrDirtyTree)
	var dirty *DirtyTreeError
	require.True(t, errors.As(err, &dirty))
	assert.Equal(t, []string{"bench.txt"}, dirty.Files)
	assert.False(t, ran)
	assert.Zero(t, g.Checkouts())
	assert.Equal(t, "uncommitted", f.read(t))
}

func TestGuard_NilRevisionLeavesTreeAlone(t *testing.T) {
	f := newFixture(t)
	f.git.Write("bench.txt", "uncommitted")
	g := NewGuard(f.repo, quietLogger())

	ran := false
	err := g.WithRevision(context.Background(), nil, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Zero(t, g.Checkouts())
}

func TestGuard_CheckoutFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := NewGuard(f.repo, quietLogger())
	require.NoError(t, g.Acquire(ctx))

	bogus := &models.Revision{Hash: "0123456789abcdef0123456789abcdef01234567", Abbrev: "0123456"}
	ran := false
	err := g.WithRevision(ctx, bogus, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	assert.ErrorContains(t, err, "0123456")
	assert.False(t, ran)

	// The next revision still works.
	require.NoError(t, g.WithRevision(ctx, f.rev(f.c1), func() error { return nil }))
	require.NoError(t, g.Release(ctx))
	assert.Equal(t, "main", f.git.Head())
}

func TestGuard_UntrackedConflictFailsCheckoutOnly(t *testing.T) {
	git := gittest.New(t)
	old := git.Commit("generated.txt", "tracked")
	git.Git("rm", "-q", "generated.txt")
	git.Git("commit", "-q", "-m", "stop tracking")
	git.Write("generated.txt", "local")

	ctx := context.Background()
	repo, err := Open(ctx, git.Dir, quietLogger())
	require.NoError(t, err)
	g := NewGuard(repo, quietLogger())
	require.NoError(t, g.Acquire(ctx), "untracked files do not make the tree dirty")

	err = g.WithRevision(ctx, &models.Revision{Hash: old, Abbrev: old[:7]}, func() error { return nil })
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	assert.NotErrorIs(t, err, ErrDirtyTree)

	require.NoError(t, g.Release(ctx))
	assert.Equal(t, "main", git.Head())
	data, err := os.ReadFile(filepath.Join(git.Dir, "generated.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestGuard_RestoresAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := NewGuard(f.repo, quietLogger())
	require.NoError(t, g.Acquire(ctx))

	err := g.WithRevision(ctx, f.rev(f.c1), func() error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	err = g.WithRevision(ctx, f.rev(f.c2), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, g.Checkouts())

	require.NoError(t, g.Release(ctx))
	assert.Equal(t, "main", f.git.Head())
}

func TestGuard_ReleaseWithoutAcquire(t *testing.T) {
	f := newFixture(t)
	g := NewGuard(f.repo, quietLogger())
	assert.Error(t, g.Release(context.Background()))
}
