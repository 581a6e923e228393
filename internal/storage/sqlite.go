// Package storage keeps the history of benchmark sessions in sqlite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpataki/hypcmp/internal/models"
)

var ErrNotFound = errors.New("not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; sqlite serialises anyway.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", dbPath, err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		uuid TEXT NOT NULL UNIQUE,
		config_path TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		output_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		run_name TEXT NOT NULL,
		revision TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		mean REAL,
		document TEXT,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateSession(session *models.Session) (int64, error) {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO sessions (created_at, uuid, config_path, label, output_path, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.CreatedAt.UTC(), session.UUID, session.ConfigPath, session.Label,
		session.OutputPath, session.Status, session.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) UpdateSession(session *models.Session) error {
	var completedAt any
	if session.CompletedAt != nil {
		completedAt = session.CompletedAt.UTC()
	}
	_, err := s.db.Exec(
		`UPDATE sessions SET completed_at = ?, status = ?, error = ?, output_path = ? WHERE id = ?`,
		completedAt, session.Status, session.Error, session.OutputPath, session.ID,
	)
	return err
}

const sessionColumns = `id, created_at, completed_at, uuid, config_path, label, output_path, status, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var session models.Session
	var completedAt sql.NullTime

	err := row.Scan(
		&session.ID, &session.CreatedAt, &completedAt, &session.UUID, &session.ConfigPath,
		&session.Label, &session.OutputPath, &session.Status, &session.Error,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return &session, nil
}

func (s *Storage) GetSession(id int64) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return session, err
}

func (s *Storage) ListSessions(limit int) ([]*models.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (s *Storage) CreateEntry(entry *models.Entry) (int64, error) {
	var document any
	if entry.Document != nil {
		document = string(entry.Document)
	}
	result, err := s.db.Exec(
		`INSERT INTO entries (session_id, seq, run_name, revision, label, status, error, mean, document, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Seq, entry.RunName, entry.Revision, entry.Label, entry.Status,
		entry.Error, entry.Mean, document, utc(entry.StartedAt), utc(entry.CompletedAt),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetEntriesForSession(sessionID int64) ([]*models.Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, seq, run_name, revision, label, status, error, mean, document, started_at, completed_at
		 FROM entries WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		var entry models.Entry
		var mean sql.NullFloat64
		var document sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&entry.ID, &entry.SessionID, &entry.Seq, &entry.RunName, &entry.Revision, &entry.Label,
			&entry.Status, &entry.Error, &mean, &document, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		if mean.Valid {
			entry.Mean = &mean.Float64
		}
		if document.Valid {
			entry.Document = []byte(document.String)
		}
		if startedAt.Valid {
			entry.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			entry.CompletedAt = &completedAt.Time
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (s *Storage) DeleteSession(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries WHERE session_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

func utc(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// FormatTimeAgo renders t relative to now for listings.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2")
	}
}
