package revision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/models"
)

// AbbrevLen is the length of abbreviated hashes produced by the all selector.
const AbbrevLen = 7

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

type Resolver struct {
	History History
	Scope   models.AllScope
	Log     logrus.FieldLogger
}

// Resolve expands spec into unique revisions in ascending commit time.
// An empty spec yields no revisions. When spec has selector flags its
// explicit tokens are ignored.
func (r *Resolver) Resolve(ctx context.Context, spec models.RevisionSpec) ([]models.Revision, error) {
	if spec.Empty() {
		return nil, nil
	}

	var revs []models.Revision
	var err error
	if spec.Selectors.Any() {
		if len(spec.Tokens) > 0 {
			r.log().WithField("tokens", spec.Tokens).Warn("Selector flags given; ignoring explicit commits")
		}
		revs, err = r.selectors(ctx, spec.Selectors)
	} else {
		revs, err = r.tokens(ctx, spec.Tokens)
	}
	if err != nil {
		return nil, err
	}

	return order(revs), nil
}

func (r *Resolver) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

func (r *Resolver) tokens(ctx context.Context, tokens []string) ([]models.Revision, error) {
	revs := make([]models.Revision, 0, len(tokens))
	for _, tok := range tokens {
		c, err := r.History.Resolve(ctx, tok)
		if err != nil {
			return nil, wrap(tok, err)
		}
		ref := tok
		if isHashOf(tok, c.Hash) {
			// Hashes are labelled by their abbreviated form.
			ref = ""
		}
		revs = append(revs, revisionOf(c, ref))
	}
	return revs, nil
}

func (r *Resolver) selectors(ctx context.Context, s models.Selectors) ([]models.Revision, error) {
	switch {
	case s.All:
		scope := r.Scope
		if scope == "" {
			scope = models.AllScopeRepository
		}
		commits, err := r.History.Commits(ctx, scope)
		if err != nil {
			return nil, wrap("--all", err)
		}
		revs := make([]models.Revision, 0, len(commits))
		for _, c := range commits {
			rev := revisionOf(c, "")
			if len(rev.Abbrev) > AbbrevLen {
				rev.Abbrev = rev.Abbrev[:AbbrevLen]
			}
			revs = append(revs, rev)
		}
		return revs, nil

	case s.Branches:
		refs, err := r.History.Branches(ctx)
		if err != nil {
			return nil, wrap("--branches", err)
		}
		if len(refs) == 0 {
			return nil, &ResolutionError{Token: "--branches", Err: fmt.Errorf("%w: no branches in repository", ErrNotFound)}
		}
		return refRevisions(refs), nil

	case s.Tags:
		refs, err := r.History.Tags(ctx)
		if err != nil {
			return nil, wrap("--tags", err)
		}
		if len(refs) == 0 {
			return nil, &ResolutionError{Token: "--tags", Err: fmt.Errorf("%w: no tags in repository", ErrNotFound)}
		}
		return refRevisions(refs), nil

	default:
		return r.span(ctx, s.Since, s.Before)
	}
}

// span resolves an inclusive since/before range. A missing since starts at
// the root commit; a missing before ends at HEAD.
func (r *Resolver) span(ctx context.Context, sinceTok, beforeTok string) ([]models.Revision, error) {
	var since *Commit
	if sinceTok != "" {
		c, err := r.History.Resolve(ctx, sinceTok)
		if err != nil {
			return nil, wrap("--since="+sinceTok, err)
		}
		since = &c
	}

	var before Commit
	var err error
	if beforeTok != "" {
		before, err = r.History.Resolve(ctx, beforeTok)
		if err != nil {
			return nil, wrap("--before="+beforeTok, err)
		}
	} else {
		before, err = r.History.Head(ctx)
		if err != nil {
			return nil, wrap("HEAD", err)
		}
	}

	token := fmt.Sprintf("--since=%s --before=%s", sinceTok, beforeTok)
	if since != nil {
		if since.Time.After(before.Time) {
			return nil, &ResolutionError{Token: token, Err: fmt.Errorf("%w: %s is newer than %s", ErrInvalidRange, since.Abbrev, before.Abbrev)}
		}
		ok, err := r.History.IsAncestor(ctx, *since, before)
		if err != nil {
			return nil, wrap(token, err)
		}
		if !ok {
			return nil, &ResolutionError{Token: token, Err: fmt.Errorf("%w: %s is not an ancestor of %s", ErrInvalidRange, since.Abbrev, before.Abbrev)}
		}
	}

	commits, err := r.History.Range(ctx, since, before)
	if err != nil {
		return nil, wrap(token, err)
	}
	revs := make([]models.Revision, 0, len(commits))
	for _, c := range commits {
		revs = append(revs, revisionOf(c, ""))
	}
	return revs, nil
}

// order sorts by commit time, keeping the input order for equal times,
// and drops repeated commits.
func order(revs []models.Revision) []models.Revision {
	slices.SortStableFunc(revs, func(a, b models.Revision) int {
		return a.Time.Compare(b.Time)
	})

	seen := make(map[string]bool, len(revs))
	out := revs[:0]
	for _, rev := range revs {
		if seen[rev.Hash] {
			continue
		}
		seen[rev.Hash] = true
		out = append(out, rev)
	}
	return out
}

func refRevisions(refs []Ref) []models.Revision {
	revs := make([]models.Revision, 0, len(refs))
	for _, ref := range refs {
		revs = append(revs, revisionOf(ref.Commit, ref.Name))
	}
	return revs
}

func revisionOf(c Commit, ref string) models.Revision {
	return models.Revision{Hash: c.Hash, Abbrev: c.Abbrev, Ref: ref, Time: c.Time}
}

func isHashOf(token, hash string) bool {
	return len(token) >= AbbrevLen && hexPattern.MatchString(token) &&
		strings.HasPrefix(strings.ToLower(hash), strings.ToLower(token))
}

func wrap(token string, err error) error {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return err
	}
	return &ResolutionError{Token: token, Err: err}
}
