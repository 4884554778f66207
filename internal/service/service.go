package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/Cracker/internal/crack"
	"github.com/CZERTAINLY/Cracker/internal/log"
	"github.com/CZERTAINLY/Cracker/internal/store"
)

var (
	ErrStore  = errors.New("job store failure")
	ErrTarget = errors.New("opening target failed")
)

// Resolver maps a wordlist name to its candidates.
type Resolver interface {
	Resolve(name string) (crack.Words, error)
}

// TargetOpener returns a Tester for the archive at path.
type TargetOpener func(path string) (crack.Tester, error)

// Service runs cracking jobs and keeps their outcome in a store.
type Service struct {
	cracker   *crack.Coordinator
	store     store.Store
	wordlists Resolver
	targets   TargetOpener

	mx      sync.Mutex                    // guards running, closed and wg.Add
	running map[crack.JobID]chan struct{} // closed once the outcome is persisted
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Service. The Service owns the coordinator and closes it in
// Close, the store is owned by the caller.
func New(cracker *crack.Coordinator, s store.Store, wordlists Resolver, targets TargetOpener) *Service {
	return &Service{
		cracker:   cracker,
		store:     s,
		wordlists: wordlists,
		targets:   targets,
		running:   make(map[crack.JobID]chan struct{}),
	}
}

// Start submits a new job and returns its id without waiting for the outcome.
// The job is not bound to ctx, use Cancel to stop it.
func (s *Service) Start(ctx context.Context, wordlist, target string) (crack.JobID, error) {
	words, err := s.wordlists.Resolve(wordlist)
	if err != nil {
		return "", fmt.Errorf("resolving wordlist %s: %w", wordlist, err)
	}
	tester, err := s.targets(target)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTarget, target, err)
	}

	id := crack.JobID(uuid.NewString())
	persisted := make(chan struct{})
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return "", crack.ErrClosed
	}
	s.running[id] = persisted
	s.wg.Add(1)
	s.mx.Unlock()

	ctx = log.ContextAttrs(ctx, slog.String("job_id", string(id)))
	err = s.store.CreateJob(ctx, store.Job{
		ID:       string(id),
		Wordlist: wordlist,
		Target:   target,
		Status:   store.StatusStarted,
	})
	if err != nil {
		s.done(id)
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}

	jobCtx := context.WithoutCancel(ctx)
	started := time.Now()
	future, err := s.cracker.Crack(jobCtx, id, words, tester)
	if err != nil {
		s.persist(jobCtx, id, crack.Failed(err), 0)
		s.done(id)
		return "", err
	}

	go func() {
		defer s.done(id)
		<-future.Done()
		o, _ := future.Outcome()
		s.persist(jobCtx, id, o, time.Since(started))
	}()
	return id, nil
}

// Status returns the persisted status of a job, INVALID_ID if the store does
// not know it.
func (s *Service) Status(ctx context.Context, id string) (store.Status, error) {
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.StatusInvalidID, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}
	return job.Status, nil
}

// Result returns the password of a FOUND job or store.ErrNotFound.
func (s *Service) Result(ctx context.Context, id string) (store.Result, error) {
	return s.store.GetResult(ctx, id)
}

// Cancel stops a running job. Unknown and finished jobs are ignored.
func (s *Service) Cancel(id string) {
	s.cracker.Cancel(crack.JobID(id))
}

// Wait blocks until the job's outcome is persisted and returns the job.
func (s *Service) Wait(ctx context.Context, id string) (store.Job, error) {
	s.mx.Lock()
	persisted, ok := s.running[crack.JobID(id)]
	s.mx.Unlock()
	if ok {
		select {
		case <-ctx.Done():
			return store.Job{}, ctx.Err()
		case <-persisted:
		}
	}
	return s.store.GetJob(ctx, id)
}

// Running returns the ids of jobs whose outcome is not persisted yet.
func (s *Service) Running() []crack.JobID {
	return s.cracker.Active()
}

// Close cancels the running jobs and waits until their outcomes are persisted.
func (s *Service) Close() {
	s.mx.Lock()
	s.closed = true
	s.mx.Unlock()
	s.cracker.Close()
	s.wg.Wait()
}

func (s *Service) persist(ctx context.Context, id crack.JobID, o crack.Outcome, took time.Duration) {
	var err error
	switch o.Kind {
	case crack.OutcomeFound:
		err = s.store.SaveResult(ctx, store.Result{
			JobID:      string(id),
			Password:   o.Password,
			DurationMs: took.Milliseconds(),
		})
		if err == nil {
			err = s.store.UpdateStatus(ctx, string(id), store.StatusFound, "")
		}
	case crack.OutcomeNotFound:
		err = s.store.UpdateStatus(ctx, string(id), store.StatusNotFound, "")
	case crack.OutcomeFailed:
		err = s.store.UpdateStatus(ctx, string(id), store.StatusFailed, o.Err.Error())
	default:
		err = s.store.UpdateStatus(ctx, string(id), store.StatusCancelled, "")
	}
	if err != nil {
		slog.ErrorContext(ctx, "persisting outcome failed", "outcome", o.Kind.String(), "error", err)
	}
}

// done releases a job registered by Start.
func (s *Service) done(id crack.JobID) {
	s.mx.Lock()
	close(s.running[id])
	delete(s.running, id)
	s.mx.Unlock()
	s.wg.Done()
}
