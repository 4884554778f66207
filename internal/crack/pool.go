package crack

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs batches on at most size goroutines at once. It is shared by all
// jobs of a Coordinator.
type Pool struct {
	size int
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewPool returns a pool of the given size, values < 1 mean
// runtime.GOMAXPROCS(0).
func NewPool(size int) *Pool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Submit waits for a free worker and runs fn on it. It fails only when ctx is
// done before a worker frees up. fn receives a context which is canceled by
// Handle.Cancel or by ctx.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) (*Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer close(h.done)
		defer cancel()
		fn(hctx)
	}()
	return h, nil
}

// Wait blocks until every submitted fn has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Handle is an in-flight batch.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel asks the batch to stop. The candidate being tested is always
// finished, the rest of the batch is skipped.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Wait() {
	<-h.done
}
