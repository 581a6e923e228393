// Package report collects benchmark results into the consolidated report.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/mpataki/hypcmp/internal/executor"
	"github.com/mpataki/hypcmp/internal/models"
)

const filePerms = 0o644

var chmod = os.Chmod

type Revision struct {
	Hash   string `json:"hash"`
	Abbrev string `json:"abbrev"`
	Ref    string `json:"ref,omitempty"`
}

// Entry is the result of one (run, revision) pair.
type Entry struct {
	Label       string            `json:"label"`
	Run         string            `json:"run"`
	Revision    *Revision         `json:"revision"`
	Invocation  []string          `json:"invocation"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Results     []json.RawMessage `json:"results"`
}

type Report struct {
	Label     string    `json:"label,omitempty"`
	Session   string    `json:"session"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// NewEntry builds the entry for run at rev from the executor's document.
func NewEntry(run string, rev *models.Revision, doc *executor.Document) Entry {
	e := Entry{
		Run:         run,
		Invocation:  doc.Invocation,
		Annotations: doc.Annotations,
		Results:     doc.Results,
	}
	if rev != nil {
		e.Revision = &Revision{Hash: rev.Hash, Abbrev: rev.Abbrev, Ref: rev.Ref}
	}
	return e
}

// Label names an entry: the run, at the revision when there is one, under
// the report label when the benchmark file sets one.
func Label(reportLabel, run string, rev *models.Revision) string {
	label := run
	if rev != nil {
		label += "@" + rev.ID()
	}
	if reportLabel != "" {
		label = reportLabel + "/" + label
	}
	return label
}

// Aggregator accumulates entries in the order they are added.
type Aggregator struct {
	report Report
	Log    logrus.FieldLogger
}

func NewAggregator(label, session string, createdAt time.Time) *Aggregator {
	return &Aggregator{report: Report{
		Label:     label,
		Session:   session,
		CreatedAt: createdAt.UTC(),
		Entries:   []Entry{},
	}, Log: logrus.StandardLogger()}
}

func (a *Aggregator) Add(label string, e Entry) {
	e.Label = label
	a.report.Entries = append(a.report.Entries, e)
}

func (a *Aggregator) Len() int { return len(a.report.Entries) }

func (a *Aggregator) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(&a.report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// Finalize writes the report to path, replacing any previous file in one
// rename so readers never see a partial report.
func (a *Aggregator) Finalize(path string) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	// The report is in place; a mode it keeps from the temp file is not a failure.
	if err := chmod(path, filePerms); err != nil {
		a.Log.WithError(err).WithField("path", path).Warn("Failed to set report permissions")
	}
	return nil
}

// Read loads a report written by Finalize.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}

// FormatSeconds renders a time reported by hyperfine in a readable unit.
func FormatSeconds(s float64) string {
	switch {
	case s < 1e-3:
		return fmt.Sprintf("%.1f µs", s*1e6)
	case s < 1:
		return fmt.Sprintf("%.1f ms", s*1e3)
	default:
		return fmt.Sprintf("%.3f s", s)
	}
}
