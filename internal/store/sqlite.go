//go:build sqlite

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
)

func init() {
	openers[TypeSQLite] = func(path string, ttl time.Duration, _ *slog.Logger) (Store, error) {
		return NewSQLite(path, ttl)
	}
}

// SQLite keeps jobs and results in the jobs and results tables of a SQLite
// database file.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens or creates the database file at path.
func NewSQLite(path string, ttl time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite store: %w", err)
	}

	s := &SQLite{db: db, ttl: ttl}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		wordlist TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS results (
		job_id TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) CreateJob(ctx context.Context, job Job) error {
	if err := checkNew(job); err != nil {
		return err
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", s.closed(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// expired records give their id back
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		job.ID, now.UnixNano()); err != nil {
		return fmt.Errorf("purging job %s: %w", job.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, wordlist, target, status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Wordlist, job.Target, job.Status, job.Reason, job.CreatedAt.UnixNano(), now.UnixNano())
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrExists, job.ID)
		}
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", s.closed(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	var from Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		id, now.UnixNano()).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading job %s: %w", id, err)
	}
	if err := checkUpdate(id, from, status); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, reason = ?, updated_at = ?, expires_at = ? WHERE id = ?`,
		status, reason, now.UnixNano(), s.expiry(now), id); err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing job %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) SaveResult(ctx context.Context, result Result) error {
	now := time.Now().UTC()
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (job_id, password, duration_ms, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, result.JobID, result.Password, result.DurationMs, result.CreatedAt.UnixNano(), s.expiry(now))
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("job %s: %w", result.JobID, ErrNotFound)
		}
		return fmt.Errorf("saving result %s: %w", result.JobID, err)
	}
	return nil
}

func (s *SQLite) GetJob(ctx context.Context, id string) (Job, error) {
	var (
		job              Job
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, wordlist, target, status, reason, created_at, updated_at
		FROM jobs WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, id, time.Now().UnixNano()).Scan(&job.ID, &job.Wordlist, &job.Target, &job.Status, &job.Reason, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("reading job %s: %w", id, s.closed(err))
	}
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	return job, nil
}

func (s *SQLite) GetResult(ctx context.Context, id string) (Result, error) {
	var (
		result  Result
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, password, duration_ms, created_at
		FROM results WHERE job_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, id, time.Now().UnixNano()).Scan(&result.JobID, &result.Password, &result.DurationMs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading result %s: %w", id, s.closed(err))
	}
	result.CreatedAt = time.Unix(0, created).UTC()
	return result, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) expiry(now time.Time) sql.NullInt64 {
	if s.ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: now.Add(s.ttl).UnixNano(), Valid: true}
}

func (s *SQLite) closed(err error) error {
	if err != nil && err.Error() == "sql: database is closed" {
		return errors.Join(ErrClosed, err)
	}
	return err
}
