package crack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// job is the mutable state of one cracking job.
//
// found and aborted are flipped at most once by CAS and only the winner writes
// into the future. They are kept apart so a fault can never be mistaken for a
// success and vice versa. Whichever write reaches the future first decides the
// outcome.
type job struct {
	id      JobID
	tester  Tester
	started time.Time

	found     atomic.Bool
	aborted   atomic.Bool
	cancelled atomic.Bool
	status    atomic.Int32
	tested    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	future *Future

	mx      sync.Mutex
	handles []*Handle
}

func newJob(ctx context.Context, id JobID, tester Tester, onSettle func(*job, Outcome)) *job {
	j := &job{
		id:      id,
		tester:  tester,
		started: time.Now(),
	}
	// keep logging attributes from the caller, the job ends on Cancel only
	j.ctx, j.cancel = context.WithCancel(context.WithoutCancel(ctx))
	j.future = newFuture(func(o Outcome) { onSettle(j, o) })
	j.status.Store(int32(StatusCreated))
	return j
}

func (j *job) Status() Status {
	return Status(j.status.Load())
}

func (j *job) transition(to Status) bool {
	for {
		cur := j.Status()
		if !cur.allows(to) {
			return false
		}
		if j.status.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// halted reports whether no new candidate may be started.
func (j *job) halted() bool {
	return j.found.Load() || j.aborted.Load() || j.cancelled.Load()
}

// try tests one candidate and reports whether the caller must stop.
func (j *job) try(ctx context.Context, candidate string) bool {
	ok, err := j.test(ctx, candidate)
	j.tested.Add(1)
	switch {
	case err != nil:
		if j.cancelled.Load() || ctx.Err() != nil {
			// the job is over already, the error can't change its outcome
			return true
		}
		j.fail(ctx, fmt.Errorf("%w: %w", ErrTester, err))
		return true
	case ok:
		if j.found.CompareAndSwap(false, true) {
			slog.InfoContext(ctx, "password found", "tested", j.tested.Load())
			j.future.resolve(Found(candidate))
		}
		return true
	default:
		return false
	}
}

func (j *job) test(ctx context.Context, candidate string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tester panic: %v", r)
		}
	}()
	return j.tester.Test(ctx, candidate)
}

// fail settles the job with a fault unless a password was found already.
func (j *job) fail(ctx context.Context, err error) {
	if j.found.Load() {
		return
	}
	if !j.aborted.CompareAndSwap(false, true) {
		return
	}
	slog.ErrorContext(ctx, "job failed", "error", err)
	j.future.resolve(Failed(err))
}

// stop cancels the job, it is safe to call any number of times.
func (j *job) stop() {
	if !j.cancelled.CompareAndSwap(false, true) {
		return
	}
	// the flag must be visible before any batch observes its canceled context
	j.cancel()
	for _, h := range j.snapshot() {
		h.Cancel()
	}
	if j.future.resolve(Cancelled()) {
		slog.InfoContext(j.ctx, "job cancelled", "tested", j.tested.Load())
	}
}

// runBatch tests candidates in order until the batch ends or the job halts.
func (j *job) runBatch(ctx context.Context, batch []string) {
	for _, candidate := range batch {
		if j.halted() || ctx.Err() != nil {
			return
		}
		if j.try(ctx, candidate) {
			return
		}
	}
}

func (j *job) track(h *Handle) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.handles = append(j.handles, h)
}

func (j *job) snapshot() []*Handle {
	j.mx.Lock()
	defer j.mx.Unlock()
	return append([]*Handle(nil), j.handles...)
}

// drain waits for every dispatched batch, no matter if it finished or was canceled.
func (j *job) drain() {
	for _, h := range j.snapshot() {
		h.Wait()
	}
}
