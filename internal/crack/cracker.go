// Package crack implements the concurrent dictionary attack engine.
//
// A job streams candidates from Words, tests them with a Tester and settles a
// Future with exactly one Outcome: Found, NotFound, Failed or Cancelled.
//
//	Crack ──> registry.add ──> driver goroutine (Strategy.drive)
//	                               │ batches
//	                               v
//	                           Pool workers ──> Tester
//	                               │ CAS found / aborted
//	                               v
//	                           Future.resolve ──> registry.remove
//
// Invariants:
//   - at most one active job per JobID
//   - a Future is written once, the first writer decides the Outcome
//   - a job leaves the registry exactly once, when its Future settles
//   - cancellation is cooperative: a candidate being tested is always
//     finished, no new candidate is started afterwards
package crack

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CZERTAINLY/Cracker/internal/log"
)

// Cracker starts and cancels cracking jobs.
type Cracker interface {
	// Crack registers the job and returns immediately. It fails with
	// ErrDuplicateJob if id is active already. Canceling ctx cancels the job.
	Crack(ctx context.Context, id JobID, words Words, tester Tester) (*Future, error)
	// Cancel stops the job. Unknown or finished ids are ignored.
	Cancel(id JobID)
}

// Metrics receives job level events. All methods must be safe for concurrent use.
type Metrics interface {
	JobStarted(strategy string)
	JobFinished(strategy string, kind OutcomeKind, tested int64, took time.Duration)
}

var _ Cracker = (*Coordinator)(nil)

// Coordinator is the Cracker implementation. The Strategy decides how the
// candidates are scheduled.
type Coordinator struct {
	strategy Strategy
	metrics  Metrics
	jobs     registry

	mx     sync.RWMutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

func New(strategy Strategy) *Coordinator {
	return &Coordinator{
		strategy: strategy,
	}
}

// WithMetrics sets the metrics sink, it must be called before the first Crack.
func (c *Coordinator) WithMetrics(m Metrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) Strategy() Strategy {
	return c.strategy
}

func (c *Coordinator) Crack(ctx context.Context, id JobID, words Words, tester Tester) (*Future, error) {
	if words == nil || tester == nil {
		return nil, errors.New("words and tester must not be nil")
	}

	c.mx.RLock()
	defer c.mx.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	ctx = log.ContextAttrs(ctx, slog.String("job_id", string(id)))
	j := newJob(ctx, id, tester, c.settled)
	if !c.jobs.add(j) {
		j.cancel()
		return nil, &DuplicateJobError{ID: id}
	}

	j.transition(StatusRunning)
	if c.metrics != nil {
		c.metrics.JobStarted(c.strategy.String())
	}
	slog.InfoContext(j.ctx, "job started", "strategy", c.strategy.String())

	stopWatch := context.AfterFunc(ctx, j.stop)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer stopWatch()
		c.strategy.drive(j, words)
		if !j.halted() {
			j.future.resolve(NotFound())
		}
	}()
	return j.future, nil
}

func (c *Coordinator) Cancel(id JobID) {
	j, ok := c.jobs.get(id)
	if !ok {
		return
	}
	j.stop()
}

// Lookup returns the status of an active job or ErrUnknownJob. Jobs leave the
// active set as soon as they settle, the final status is carried by the Future.
func (c *Coordinator) Lookup(id JobID) (Status, error) {
	j, ok := c.jobs.get(id)
	if !ok {
		return 0, ErrUnknownJob
	}
	return j.Status(), nil
}

// Active returns the sorted ids of the running jobs.
func (c *Coordinator) Active() []JobID {
	return c.jobs.ids()
}

// Close cancels all active jobs and waits until every goroutine started by
// the Coordinator has returned. Crack fails with ErrClosed afterwards.
func (c *Coordinator) Close() {
	c.mx.Lock()
	c.closed = true
	c.mx.Unlock()

	for _, j := range c.jobs.all() {
		j.stop()
	}
	c.wg.Wait()
	c.strategy.wait()
}

// settled is the Future hook, it runs exactly once per job.
func (c *Coordinator) settled(j *job, o Outcome) {
	j.transition(o.Status())
	c.jobs.remove(j)
	// stop the batches still running
	j.cancel()

	took := time.Since(j.started)
	if c.metrics != nil {
		c.metrics.JobFinished(c.strategy.String(), o.Kind, j.tested.Load(), took)
	}
	slog.InfoContext(j.ctx, "job finished",
		"outcome", o.Kind.String(),
		"tested", j.tested.Load(),
		"took", took.String(),
	)
}

// DuplicateJobError is returned by Crack for an id which is active already.
type DuplicateJobError struct {
	ID JobID
}

func (e *DuplicateJobError) Error() string {
	return "job " + string(e.ID) + ": " + ErrDuplicateJob.Error()
}

func (e *DuplicateJobError) Unwrap() error {
	return ErrDuplicateJob
}
