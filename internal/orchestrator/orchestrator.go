// Package orchestrator drives a benchmark session: it resolves each run's
// revisions, walks the working tree through them and collects the results.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/executor"
	"github.com/mpataki/hypcmp/internal/models"
	"github.com/mpataki/hypcmp/internal/report"
	"github.com/mpataki/hypcmp/internal/revision"
	"github.com/mpataki/hypcmp/internal/storage"
	"github.com/mpataki/hypcmp/internal/workspace"
)

var ErrInterrupted = errors.New("interrupted")

type Executor interface {
	Execute(ctx context.Context, run *models.RunDefinition, rev *models.Revision, params models.BenchmarkParams) (*executor.Document, error)
}

type Publisher interface {
	Publish(ctx context.Context, session string, report []byte) (string, error)
}

type Options struct {
	ConfigPath string
	// Dir is the repository the runs are benchmarked in.
	Dir string
	// Output and Label override the benchmark file when set.
	Output string
	Label  string
}

// Outcome is the result of one (run, revision) pair. Revision is empty for
// unversioned runs and for runs whose revisions could not be resolved.
type Outcome struct {
	Label    string
	Run      string
	Revision string
	Mean     *float64
	Err      error
}

type Summary struct {
	SessionID int64
	UUID      string
	// Output is the report path, empty when nothing was written.
	Output    string
	Published string
	// PublishErr is set when the report was written but not published.
	PublishErr error
	Outcomes   []Outcome
	Checkouts  int
}

func (s *Summary) Failures() []Outcome {
	var failed []Outcome
	for _, o := range s.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

type Orchestrator struct {
	storage   *storage.Storage
	executor  Executor
	publisher Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// New returns an orchestrator. A nil store disables history.
func New(store *storage.Storage, exec Executor, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{storage: store, executor: exec, log: log, now: time.Now}
}

// SetPublisher uploads every finished report through p.
func (o *Orchestrator) SetPublisher(p Publisher) {
	o.publisher = p
}

// session is the state of one Run call.
type session struct {
	record  *models.Session
	agg     *report.Aggregator
	summary *Summary
	label   string
	seq     int
}

// Run benchmarks every run of b. Per-pair failures are reported in the
// summary; the error is reserved for failures that stop the session.
func (o *Orchestrator) Run(ctx context.Context, b *models.Benchmark, opts Options) (*Summary, error) {
	id := uuid.NewString()
	log := o.log.WithField("session", id)
	started := o.now()

	s := &session{
		record: &models.Session{
			UUID:       id,
			CreatedAt:  started,
			ConfigPath: opts.ConfigPath,
			Label:      firstNonEmpty(opts.Label, b.Label),
			OutputPath: outputPath(opts, b),
			Status:     models.SessionStatusRunning,
		},
		summary: &Summary{UUID: id},
	}
	s.label = s.record.Label
	s.agg = report.NewAggregator(s.label, id, started)
	s.agg.Log = log
	o.createSession(log, s)

	// Every session inside a repository requires a clean tree, versioned or
	// not. Only unversioned sessions may run outside one.
	var guard *workspace.Guard
	var history revision.History
	repo, err := workspace.Open(ctx, opts.Dir, log)
	switch {
	case err == nil:
		guard = workspace.NewGuard(repo, log)
		if err := guard.Acquire(ctx); err != nil {
			return s.summary, o.finish(log, s, models.SessionStatusFailed, err)
		}
		history = repo
	case errors.Is(err, workspace.ErrNotRepository) && !b.Versioned():
		log.WithField("dir", opts.Dir).Debug("Not a git repository, running without checkout guard")
	default:
		return s.summary, o.finish(log, s, models.SessionStatusFailed, err)
	}

	plan := Plan(ctx, b, history, log)
	fatal := o.execute(ctx, log, b, plan, guard, s)

	if guard != nil {
		if err := guard.Release(ctx); err != nil {
			fatal = errors.Join(fatal, err)
		}
		s.summary.Checkouts = guard.Checkouts()
	}

	// A partial report is still worth keeping; an empty one only when the
	// session ran to the end.
	if fatal == nil || s.agg.Len() > 0 {
		if err := s.agg.Finalize(s.record.OutputPath); err != nil {
			return s.summary, o.finish(log, s, models.SessionStatusFailed, errors.Join(fatal, err))
		}
		s.summary.Output = s.record.OutputPath
		log.WithFields(logrus.Fields{"path": s.record.OutputPath, "entries": s.agg.Len()}).Info("Wrote report")
	}

	switch {
	case errors.Is(fatal, workspace.ErrRestoreFailed):
		return s.summary, o.finish(log, s, models.SessionStatusFailed, fatal)
	case errors.Is(fatal, ErrInterrupted):
		return s.summary, o.finish(log, s, models.SessionStatusInterrupted, ErrInterrupted)
	case fatal != nil:
		return s.summary, o.finish(log, s, models.SessionStatusFailed, fatal)
	}

	o.publish(ctx, log, s)

	if failed := len(s.summary.Failures()); failed > 0 {
		err := fmt.Errorf("%d of %d benchmarks failed", failed, len(s.summary.Outcomes))
		o.finishRecord(log, s, models.SessionStatusFailed, err)
		return s.summary, nil
	}
	o.finishRecord(log, s, models.SessionStatusComplete, nil)
	return s.summary, nil
}

// execute benchmarks every planned pair in order. It returns an error only
// when the session cannot continue.
func (o *Orchestrator) execute(ctx context.Context, log logrus.FieldLogger, b *models.Benchmark, plan []PlannedRun, guard *workspace.Guard, s *session) error {
	for _, p := range plan {
		runLog := log.WithField("run", p.Run.Name)
		if p.Err != nil {
			runLog.WithError(p.Err).Error("Skipping run: revisions could not be resolved")
			o.addOutcome(runLog, s, Outcome{Label: report.Label(s.label, p.Run.Name, nil), Run: p.Run.Name, Err: p.Err}, nil, o.now())
			continue
		}

		revs := p.Targets()
		for i := range revs {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			rev := revs[i]
			label := report.Label(s.label, p.Run.Name, rev)
			pairLog := runLog
			if rev != nil {
				pairLog = pairLog.WithField("revision", rev.ID())
			}
			pairLog.Info("Benchmarking")

			started := o.now()
			var doc *executor.Document
			body := func() error {
				var err error
				doc, err = o.executor.Execute(ctx, p.Run, rev, b.Params)
				return err
			}
			var err error
			if guard == nil {
				err = body()
			} else {
				err = guard.WithRevision(ctx, rev, body)
			}

			outcome := Outcome{Label: label, Run: p.Run.Name}
			if rev != nil {
				outcome.Revision = rev.ID()
			}

			switch {
			case errors.Is(err, workspace.ErrRestoreFailed):
				outcome.Err = err
				o.addOutcome(pairLog, s, outcome, nil, started)
				return err
			case ctx.Err() != nil:
				pairLog.Warn("Interrupted")
				return ErrInterrupted
			case err != nil:
				outcome.Err = err
				pairLog.WithError(err).Error("Benchmark failed")
				o.addOutcome(pairLog, s, outcome, nil, started)
				continue
			}

			entry := report.NewEntry(p.Run.Name, rev, doc)
			s.agg.Add(label, entry)
			entry.Label = label
			if mean, ok := doc.Mean(); ok {
				outcome.Mean = &mean
				pairLog = pairLog.WithField("mean", mean)
			}
			pairLog.Info("Benchmark complete")
			o.addOutcome(pairLog, s, outcome, &entry, started)
		}
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, log logrus.FieldLogger, s *session) {
	if o.publisher == nil || s.summary.Output == "" {
		return
	}
	data, err := s.agg.Marshal()
	if err == nil {
		s.summary.Published, err = o.publisher.Publish(ctx, s.record.UUID, data)
	}
	if err != nil {
		s.summary.PublishErr = fmt.Errorf("failed to publish report: %w", err)
		log.WithError(err).Error("Failed to publish report")
		return
	}
	log.WithField("location", s.summary.Published).Info("Published report")
}

func outputPath(opts Options, b *models.Benchmark) string {
	out := firstNonEmpty(opts.Output, b.Output, models.DefaultOutput)
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(opts.Dir, out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// History

func (o *Orchestrator) createSession(log logrus.FieldLogger, s *session) {
	if o.storage == nil {
		return
	}
	id, err := o.storage.CreateSession(s.record)
	if err != nil {
		log.WithError(err).Warn("Failed to record session")
		return
	}
	s.record.ID = id
	s.summary.SessionID = id
}

func (o *Orchestrator) addOutcome(log logrus.FieldLogger, s *session, outcome Outcome, entry *report.Entry, started time.Time) {
	s.summary.Outcomes = append(s.summary.Outcomes, outcome)
	s.seq++
	if o.storage == nil || s.record.ID == 0 {
		return
	}

	completed := o.now()
	rec := &models.Entry{
		SessionID:   s.record.ID,
		Seq:         s.seq,
		RunName:     outcome.Run,
		Revision:    outcome.Revision,
		Label:       outcome.Label,
		Status:      models.EntryStatusComplete,
		Mean:        outcome.Mean,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if outcome.Err != nil {
		rec.Status = models.EntryStatusFailed
		rec.Error = outcome.Err.Error()
	}
	if entry != nil {
		data, err := json.Marshal(entry)
		if err == nil {
			rec.Document = data
		}
	}
	if _, err := o.storage.CreateEntry(rec); err != nil {
		log.WithError(err).Warn("Failed to record benchmark")
	}
}

func (o *Orchestrator) finish(log logrus.FieldLogger, s *session, status models.SessionStatus, err error) error {
	o.finishRecord(log, s, status, err)
	return err
}

func (o *Orchestrator) finishRecord(log logrus.FieldLogger, s *session, status models.SessionStatus, err error) {
	now := o.now()
	s.record.Status = status
	s.record.CompletedAt = &now
	if err != nil {
		s.record.Error = err.Error()
	}
	if s.summary.Output == "" {
		s.record.OutputPath = ""
	}
	if o.storage == nil || s.record.ID == 0 {
		return
	}
	if uerr := o.storage.UpdateSession(s.record); uerr != nil {
		log.WithError(uerr).Warn("Failed to update session")
	}
}
