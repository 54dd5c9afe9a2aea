package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/watchdog/internal/store"
)

// Sink implements history.Sink on SQLite (modernc.org/sqlite driver,
// CGO-free). Path is a filesystem path; use ":memory:" for in-memory.
type Sink struct {
	db *sql.DB
}

// New opens a SQLite database at path and ensures the crash schema.
func New(path string) (*Sink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	s := &Sink{db: d}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS crashes(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp_ms INTEGER NOT NULL,
			exit_code INTEGER NULL,
			signal TEXT NULL,
			uptime_ms INTEGER NOT NULL,
			stderr TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_crashes_timestamp ON crashes(timestamp_ms);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Record(ctx context.Context, e store.CrashEntry) error {
	var code sql.NullInt64
	if e.ExitCode != nil {
		code = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}
	var sig sql.NullString
	if e.Signal != nil {
		sig = sql.NullString{String: *e.Signal, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crashes(timestamp_ms, exit_code, signal, uptime_ms, stderr)
		VALUES(?, ?, ?, ?, ?);`,
		e.Timestamp, code, sig, e.UptimeMs, e.Stderr)
	return err
}

// Count reports how many entries the mirror holds.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crashes;`).Scan(&n)
	return n, err
}

func (s *Sink) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM crashes;`)
	return err
}

func (s *Sink) Close() error { return s.db.Close() }
