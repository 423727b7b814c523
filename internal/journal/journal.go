// Package journal records the outcome of every completion request in SQLite.
// Only metadata is stored; message content never leaves memory.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"DeepChat/internal/session"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry is one request outcome
type Entry struct {
	TurnID       string
	Mode         string
	Model        string
	StartedAt    time.Time
	Duration     time.Duration
	Status       string
	Error        string
	MessageCount int
	Fingerprint  string
}

// Journal is an append-only request log
type Journal struct {
	db *sql.DB
}

// Open opens (and creates if needed) the journal database at path
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under concurrent workers
	db.SetMaxOpenConns(1)

	createRequestsTable := `
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id TEXT NOT NULL,
		mode TEXT,
		model TEXT,
		started_at DATETIME,
		duration_ms INTEGER,
		status TEXT,
		error TEXT,
		message_count INTEGER,
		fingerprint TEXT
	);`

	if _, err := db.Exec(createRequestsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create requests table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends an entry
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO requests (turn_id, mode, model, started_at, duration_ms, status, error, message_count, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TurnID, e.Mode, e.Model, e.StartedAt.UTC(), e.Duration.Milliseconds(), e.Status, e.Error, e.MessageCount, e.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT turn_id, mode, model, started_at, duration_ms, status, error, message_count, fingerprint
		 FROM requests ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.TurnID, &e.Mode, &e.Model, &e.StartedAt, &ms, &e.Status, &e.Error, &e.MessageCount, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Fingerprint hashes the role and content of messages so identical contexts
// can be recognised without storing them.
func Fingerprint(messages []session.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
