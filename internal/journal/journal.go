// Package journal keeps a SQLite history of sorting runs.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/imagesorter/internal/apperr"
	"github.com/starford/imagesorter/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	note_path   TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	target_path TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
CREATE INDEX IF NOT EXISTS idx_runs_note ON runs(note_path);
`

// DefaultLimit is used by List when limit <= 0.
const DefaultLimit = 50

// Recorder is what the sorter needs from the journal.
type Recorder interface {
	Record(run *models.Run) error
}

// Journal is a read/write view of recorded runs.
type Journal interface {
	Recorder
	Get(id string) (*models.Run, error)
	List(limit int, outcome string) ([]models.Run, error)
	Counts() (map[string]int, error)
	Close() error
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)

// DB wraps a sql.DB holding the runs table.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record stores run. An empty ID is filled with a new UUID.
func (db *DB) Record(run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, note_path, outcome, error_kind, error, image_url, target_path, checksum, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.NotePath, run.Outcome, run.ErrorKind, run.Error, run.ImageURL,
		run.TargetPath, run.Checksum, run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("journal: insert run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, note_path, outcome, error_kind, error, image_url, target_path, checksum, started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (models.Run, error) {
	var r models.Run
	err := s.Scan(&r.ID, &r.NotePath, &r.Outcome, &r.ErrorKind, &r.Error, &r.ImageURL,
		&r.TargetPath, &r.Checksum, &r.StartedAt, &r.FinishedAt)
	return r, err
}

// Get returns one run by ID.
func (db *DB) Get(id string) (*models.Run, error) {
	r, err := scanRun(db.conn.QueryRow(selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get run: %w", err)
	}
	return &r, nil
}

// List returns the most recent runs, newest first. A non-empty outcome
// filters by outcome.
func (db *DB) List(limit int, outcome string) ([]models.Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := selectRun
	args := []any{}
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY finished_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Counts returns the number of runs per outcome.
func (db *DB) Counts() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT outcome, count(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("journal: count runs: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("journal: scan count: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}
