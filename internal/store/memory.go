package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory keeps everything in process memory. It is the default store of a
// single cracker run.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	jobs    map[string]memRecord[Job]
	results map[string]memRecord[Result]
	closed  bool
}

type memRecord[T any] struct {
	value   T
	expires time.Time // zero never
}

func (r memRecord[T]) alive(now time.Time) bool {
	return r.expires.IsZero() || now.Before(r.expires)
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		jobs:    make(map[string]memRecord[Job]),
		results: make(map[string]memRecord[Result]),
	}
}

func (m *Memory) CreateJob(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkNew(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if rec, ok := m.jobs[job.ID]; ok && rec.alive(time.Now()) {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = memRecord[Job]{value: job}
	delete(m.results, job.ID)
	return nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	rec, ok := m.jobs[id]
	if !ok || !rec.alive(time.Now()) {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err := checkUpdate(id, rec.value.Status, status); err != nil {
		return err
	}
	rec.value.Status = status
	rec.value.Reason = reason
	rec.value.UpdatedAt = time.Now().UTC()
	rec.expires = m.expiry()
	m.jobs[id] = rec
	return nil
}

func (m *Memory) SaveResult(ctx context.Context, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if rec, ok := m.jobs[result.JobID]; !ok || !rec.alive(time.Now()) {
		return fmt.Errorf("job %s: %w", result.JobID, ErrNotFound)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	m.results[result.JobID] = memRecord[Result]{value: result, expires: m.expiry()}
	return nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Job{}, ErrClosed
	}
	rec, ok := m.jobs[id]
	if !ok || !rec.alive(time.Now()) {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return rec.value, nil
}

func (m *Memory) GetResult(ctx context.Context, id string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Result{}, ErrClosed
	}
	rec, ok := m.results[id]
	if !ok || !rec.alive(time.Now()) {
		return Result{}, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return rec.value, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(m.ttl)
}
