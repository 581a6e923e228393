package orchestrator

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/models"
	"github.com/mpataki/hypcmp/internal/revision"
)

// PlannedRun is a run with its resolved revisions. Err is set when the
// revisions could not be resolved; the run is then skipped.
type PlannedRun struct {
	Run       *models.RunDefinition
	Revisions []models.Revision
	Err       error
}

// Targets lists what the run is benchmarked at: its revisions in order, or
// a single nil for an unversioned run.
func (p *PlannedRun) Targets() []*models.Revision {
	if p.Run.Revisions.Empty() {
		return []*models.Revision{nil}
	}
	out := make([]*models.Revision, len(p.Revisions))
	for i := range p.Revisions {
		out[i] = &p.Revisions[i]
	}
	return out
}

// Plan resolves the revisions of every run in file order. All resolution
// happens before the working tree moves, so every run sees the same HEAD.
// history may be nil when no run is versioned.
func Plan(ctx context.Context, b *models.Benchmark, history revision.History, log logrus.FieldLogger) []PlannedRun {
	resolver := &revision.Resolver{History: history, Scope: b.AllScope, Log: log}

	plan := make([]PlannedRun, 0, len(b.Runs))
	for _, run := range b.Runs {
		p := PlannedRun{Run: run}
		switch {
		case run.Revisions.Empty():
		case history == nil:
			p.Err = errors.New("no repository to resolve revisions in")
		default:
			p.Revisions, p.Err = resolver.Resolve(ctx, run.Revisions)
			if p.Err == nil {
				log.WithFields(logrus.Fields{"run": run.Name, "revisions": len(p.Revisions)}).Debug("Resolved revisions")
			}
		}
		plan = append(plan, p)
	}
	return plan
}
