package crack

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultBatchSize is the number of candidates dispatched to a worker at once.
const DefaultBatchSize = 5000

// Strategy schedules the candidates of a job. Both implementations share the
// job state machine, they differ in scheduling only.
type Strategy interface {
	fmt.Stringer
	// drive feeds the candidates to the tester and returns once the stream
	// is exhausted or the job halted. The Coordinator settles NotFound
	// afterwards if nobody settled the job in the meantime.
	drive(j *job, words Words)
	// wait blocks until all goroutines spawned by drive have returned.
	wait()
}

// Sequential tests the candidates one after another on the driver goroutine.
type Sequential struct{}

func NewSequential() Sequential {
	return Sequential{}
}

func (Sequential) String() string {
	return "sequential"
}

func (Sequential) drive(j *job, words Words) {
	for word, err := range words {
		if err != nil {
			j.fail(j.ctx, fmt.Errorf("%w: %w", ErrSourceRead, err))
			return
		}
		if j.halted() {
			return
		}
		if j.try(j.ctx, word) {
			return
		}
	}
}

func (Sequential) wait() {}

// Parallel splits the candidates into batches and runs them on a worker pool.
type Parallel struct {
	pool      *Pool
	batchSize int
}

// NewParallel returns a strategy dispatching batches of batchSize candidates
// to pool. batchSize < 1 means DefaultBatchSize.
func NewParallel(pool *Pool, batchSize int) *Parallel {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Parallel{
		pool:      pool,
		batchSize: batchSize,
	}
}

func (p *Parallel) String() string {
	return "parallel"
}

func (p *Parallel) BatchSize() int {
	return p.batchSize
}

func (p *Parallel) drive(j *job, words Words) {
	batch := make([]string, 0, p.batchSize)
	for word, err := range words {
		if err != nil {
			// in-flight batches are not awaited, they stop on the aborted flag
			j.fail(j.ctx, fmt.Errorf("%w: %w", ErrSourceRead, err))
			return
		}
		if j.halted() {
			break
		}
		batch = append(batch, word)
		if len(batch) < p.batchSize {
			continue
		}
		if !p.dispatch(j, batch) {
			break
		}
		batch = make([]string, 0, p.batchSize)
	}
	if len(batch) > 0 && !j.halted() {
		p.dispatch(j, batch)
	}
	j.drain()
}

// dispatch submits the batch without waiting for the previous ones. It
// returns false if the job was canceled while waiting for a free worker.
func (p *Parallel) dispatch(j *job, batch []string) bool {
	h, err := p.pool.Submit(j.ctx, func(ctx context.Context) {
		j.runBatch(ctx, batch)
	})
	if err != nil {
		slog.DebugContext(j.ctx, "batch not dispatched", "error", err)
		return false
	}
	j.track(h)
	return true
}

func (p *Parallel) wait() {
	p.pool.Wait()
}
