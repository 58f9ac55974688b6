// Package checkpoint persists a resumable (run, manager, farm, date)
// cursor in SQLite so an interrupted run can skip already-terminal dates
// on restart. This supplements the JSON output files spec §6 mandates;
// it does not replace them.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Status is the terminal or in-progress state recorded for a date.
type Status string

const (
	StatusInProgress    Status = "in_progress"
	StatusFilled        Status = "filled"
	StatusAlreadyFilled Status = "already_filled"
	StatusNoIrrigation  Status = "no_irrigation"
	StatusSkipped       Status = "skipped"
	StatusError         Status = "error"
)

// IsTerminal reports whether status represents a finished date that
// should not be reprocessed on resume.
func (s Status) IsTerminal() bool {
	return s != StatusInProgress
}

// Store wraps a SQLite connection holding the date_checkpoints table.
type Store struct {
	conn *sql.DB
}

// Open creates (or opens) the checkpoint database at path and applies
// all pending migrations, mirroring the teacher's single-writer SQLite
// setup (WAL journal, busy timeout, one connection).
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("checkpoint: ping sqlite: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("checkpoint: migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("checkpoint: create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("checkpoint: apply migrations: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// MarkInProgress records that (manager, farmID, date) is being processed
// for runID, upserting over any prior row for the same key.
func (s *Store) MarkInProgress(ctx context.Context, runID, manager, farmID, date string) error {
	return s.upsert(ctx, runID, manager, farmID, date, StatusInProgress)
}

// MarkTerminal records the terminal status reached for (manager, farmID,
// date) within runID.
func (s *Store) MarkTerminal(ctx context.Context, runID, manager, farmID, date string, status Status) error {
	return s.upsert(ctx, runID, manager, farmID, date, status)
}

func (s *Store) upsert(ctx context.Context, runID, manager, farmID, date string, status Status) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO date_checkpoints (run_id, manager, farm_id, date, status, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (run_id, manager, farm_id, date)
		DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, runID, manager, farmID, date, string(status))
	if err != nil {
		return fmt.Errorf("checkpoint: upsert: %w", err)
	}
	return nil
}

// IsTerminal reports whether (manager, farmID, date) already has a
// terminal status recorded for runID, so the orchestrator can skip it on
// resume.
func (s *Store) IsTerminal(ctx context.Context, runID, manager, farmID, date string) (bool, error) {
	var status string
	err := s.conn.QueryRowContext(ctx, `
		SELECT status FROM date_checkpoints
		WHERE run_id = ? AND manager = ? AND farm_id = ? AND date = ?
	`, runID, manager, farmID, date).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checkpoint: lookup: %w", err)
	}
	return Status(status).IsTerminal(), nil
}
