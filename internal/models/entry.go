package models

import "time"

type EntryStatus string

const (
	EntryStatusComplete EntryStatus = "complete"
	EntryStatusFailed   EntryStatus = "failed"
)

// Entry records the outcome of one (run, revision) pair.
type Entry struct {
	ID          int64
	SessionID   int64
	Seq         int
	RunName     string
	Revision    string
	Label       string
	Status      EntryStatus
	Error       string
	Mean        *float64
	Document    []byte
	StartedAt   *time.Time
	CompletedAt *time.Time
}
