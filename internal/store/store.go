// Package store persists cracking jobs and their results.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Status is the persisted state of a job.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusFound     Status = "FOUND"
	StatusNotFound  Status = "NOT_FOUND"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	// StatusInvalidID is reported for ids the store does not know. It is never stored.
	StatusInvalidID Status = "INVALID_ID"
)

// Terminal reports whether no further update is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFound, StatusNotFound, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("job already exists")
	ErrFinished = errors.New("job already finished")
	ErrStatus   = errors.New("invalid status")
	ErrClosed   = errors.New("store closed")
)

// Job is the metadata of one cracking job.
type Job struct {
	ID        string    `json:"id"`
	Wordlist  string    `json:"wordlist"`
	Target    string    `json:"target"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is the recovered password of a FOUND job.
type Result struct {
	JobID      string    `json:"job_id"`
	Password   string    `json:"password"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store keeps jobs and results. Records of finished jobs are kept for the
// retention configured on the backend, zero means forever.
type Store interface {
	// CreateJob stores a new job in STARTED, ErrExists if the id is taken.
	CreateJob(ctx context.Context, job Job) error
	// UpdateStatus moves a STARTED job to a terminal status. reason is kept
	// for FAILED jobs.
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error
	SaveResult(ctx context.Context, result Result) error
	GetJob(ctx context.Context, id string) (Job, error)
	GetResult(ctx context.Context, id string) (Result, error)
	Close() error
}

const (
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeSQLite = "sqlite"
)

type opener func(path string, ttl time.Duration, logger *slog.Logger) (Store, error)

var openers = map[string]opener{
	TypeMemory: func(_ string, ttl time.Duration, _ *slog.Logger) (Store, error) {
		return NewMemory(ttl), nil
	},
	TypeBadger: func(path string, ttl time.Duration, logger *slog.Logger) (Store, error) {
		return NewBadger(path, ttl, logger)
	},
}

// Open returns the backend of type typ. The sqlite backend is available only
// in binaries built with the sqlite tag.
func Open(typ, path string, ttl time.Duration, logger *slog.Logger) (Store, error) {
	open, ok := openers[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported store type %q", typ)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return open(path, ttl, logger)
}

func checkNew(job Job) error {
	if job.ID == "" {
		return errors.New("job id is empty")
	}
	if job.Status != StatusStarted {
		return fmt.Errorf("%w: new job %s must be %s, got %s", ErrStatus, job.ID, StatusStarted, job.Status)
	}
	return nil
}

func checkUpdate(id string, from, to Status) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: %s", ErrStatus, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrFinished, id, from)
	}
	return nil
}
