package models

import "time"

type SessionStatus string

const (
	SessionStatusRunning     SessionStatus = "running"
	SessionStatusComplete    SessionStatus = "complete"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusInterrupted SessionStatus = "interrupted"
)

// Session is one orchestration of a benchmark file, as kept in history.
type Session struct {
	ID          int64
	UUID        string
	CreatedAt   time.Time
	CompletedAt *time.Time
	ConfigPath  string
	Label       string
	OutputPath  string
	Status      SessionStatus
	Error       string
}
