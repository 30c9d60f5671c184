// Package ledger keeps an optional run-history database: one row per
// pipeline run and one per artifact produced. It is observability
// only; every method is best effort and a nil *Ledger is a valid no-op,
// so a broken database can never fail a run.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// Ledger wraps the SQLite database connection
type Ledger struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at the given path
func Open(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure ledger: %w", err)
	}

	l := &Ledger{conn: conn, path: path}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return l, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.conn.Close()
}

func (l *Ledger) migrate() error {
	_, err := l.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	if err := l.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		_, err := l.conn.Exec(`
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				target TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'running',
				error TEXT,
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP
			);
			CREATE TABLE IF NOT EXISTS artifacts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES runs(id),
				path TEXT NOT NULL,
				fs_type TEXT,
				partition_device TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			INSERT INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return err
		}
	}
	return nil
}

// StartRun records the beginning of a pipeline run and returns its id
func (l *Ledger) StartRun(kind, target string) string {
	if l == nil {
		return ""
	}
	id := uuid.NewString()
	_, err := l.conn.Exec(
		"INSERT INTO runs (id, kind, target, started_at) VALUES (?, ?, ?, ?)",
		id, kind, target, time.Now().UTC())
	if err != nil {
		logrus.Debugf("Ledger: failed to record run start: %v", err)
	}
	return id
}

// FinishRun records the outcome of a run
func (l *Ledger) FinishRun(id, status string, runErr error) {
	if l == nil || id == "" {
		return
	}
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := l.conn.Exec(
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		status, errText, time.Now().UTC(), id)
	if err != nil {
		logrus.Debugf("Ledger: failed to record run finish: %v", err)
	}
}

// Run is one recorded pipeline run
type Run struct {
	ID       string
	Kind     string
	Target   string
	Status   string
	Error    string
	Started  time.Time
	Finished *time.Time
}

// RecentRuns returns the newest runs, most recent first
func (l *Ledger) RecentRuns(limit int) ([]Run, error) {
	if l == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.conn.Query(`
		SELECT id, kind, target, status, COALESCE(error, ''), started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &r.Target, &r.Status, &r.Error, &r.Started, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.Finished = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordArtifact links a produced file to its run
func (l *Ledger) RecordArtifact(runID, path, fsType, partitionDevice string) {
	if l == nil || runID == "" {
		return
	}
	_, err := l.conn.Exec(
		"INSERT INTO artifacts (run_id, path, fs_type, partition_device) VALUES (?, ?, ?, ?)",
		runID, path, fsType, partitionDevice)
	if err != nil {
		logrus.Debugf("Ledger: failed to record artifact: %v", err)
	}
}
