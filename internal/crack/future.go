package crack

import (
	"context"
	"sync/atomic"
)

// Future is a single assignment slot for the Outcome of a job.
//
// The first resolve wins, every later one is a no-op. The settle hook runs
// before Done is closed, so a caller woken up by Done observes a job which has
// already left the active set.
type Future struct {
	settled  atomic.Bool
	done     chan struct{}
	outcome  Outcome
	onSettle func(Outcome)
}

func newFuture(onSettle func(Outcome)) *Future {
	return &Future{
		done:     make(chan struct{}),
		onSettle: onSettle,
	}
}

// resolve stores o unless an outcome was stored already. It reports whether o won.
func (f *Future) resolve(o Outcome) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.outcome = o
	if f.onSettle != nil {
		f.onSettle(o)
	}
	close(f.done)
	return true
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the outcome without blocking, the bool is false while the
// job is still running.
func (f *Future) Outcome() (Outcome, bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the job settles or ctx is done. Giving up on waiting does
// not cancel the job.
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
