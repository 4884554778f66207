package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger stores JSON encoded records in BadgerDB. Finished jobs and results
// are written with the retention as badger TTL, so expired records disappear
// without a cleanup loop.
type Badger struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadger opens or creates the database directory at path. An empty path
// keeps the database in memory.
func NewBadger(path string, ttl time.Duration, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // badger has its own logger interface

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Badger{
		db:     db,
		ttl:    ttl,
		logger: logger,
	}, nil
}

const (
	keyPrefixJob    = "job:"
	keyPrefixResult = "result:"
)

func jobKey(id string) []byte {
	return []byte(keyPrefixJob + id)
}

func resultKey(id string) []byte {
	return []byte(keyPrefixResult + id)
}

func (b *Badger) CreateJob(ctx context.Context, job Job) error {
	if err := checkNew(job); err != nil {
		return err
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}

	return b.retryUpdate(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(jobKey(job.ID))
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrExists, job.ID)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("checking job %s: %w", job.ID, err)
		}
		if err := txn.Delete(resultKey(job.ID)); err != nil {
			return err
		}
		return txn.Set(jobKey(job.ID), data)
	})
}

func (b *Badger) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	return b.retryUpdate(ctx, func(txn *badger.Txn) error {
		var job Job
		if err := get(txn, jobKey(id), &job); err != nil {
			return fmt.Errorf("job %s: %w", id, err)
		}
		if err := checkUpdate(id, job.Status, status); err != nil {
			return err
		}
		job.Status = status
		job.Reason = reason
		job.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encoding job %s: %w", id, err)
		}
		return txn.SetEntry(b.entry(jobKey(id), data))
	})
}

func (b *Badger) SaveResult(ctx context.Context, result Result) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", result.JobID, err)
	}
	return b.retryUpdate(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(jobKey(result.JobID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("job %s: %w", result.JobID, ErrNotFound)
			}
			return err
		}
		return txn.SetEntry(b.entry(resultKey(result.JobID), data))
	})
}

func (b *Badger) GetJob(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	var job Job
	err := b.view(func(txn *badger.Txn) error {
		return get(txn, jobKey(id), &job)
	})
	if err != nil {
		return Job{}, fmt.Errorf("job %s: %w", id, err)
	}
	return job, nil
}

func (b *Badger) GetResult(ctx context.Context, id string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var result Result
	err := b.view(func(txn *badger.Txn) error {
		return get(txn, resultKey(id), &result)
	})
	if err != nil {
		return Result{}, fmt.Errorf("result %s: %w", id, err)
	}
	return result, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) entry(key, data []byte) *badger.Entry {
	e := badger.NewEntry(key, data)
	if b.ttl > 0 {
		e = e.WithTTL(b.ttl)
	}
	return e
}

func (b *Badger) view(fn func(txn *badger.Txn) error) error {
	err := b.db.View(fn)
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// retryUpdate runs fn in an update transaction, retrying on conflicts.
func (b *Badger) retryUpdate(ctx context.Context, fn func(txn *badger.Txn) error) error {
	const maxRetries = 50
	const retryDelay = time.Millisecond

	for attempt := range maxRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			time.Sleep(retryDelay)
		}

		err := b.db.Update(fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, badger.ErrDBClosed):
			return ErrClosed
		case errors.Is(err, badger.ErrConflict):
			b.logger.DebugContext(ctx, "badger conflict, retrying", "attempt", attempt)
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("transaction conflict after %d retries: %w", maxRetries, badger.ErrConflict)
}

func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
