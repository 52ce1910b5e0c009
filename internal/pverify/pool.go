package pverify

import (
	"context"
	"fmt"
	"sync"
)

// Pool is a bounded worker pool for CPU-heavy protocol work:
// Merkle proof verification and erasure decoding.
//
// Offloading to the pool guarantees that cryptographic checks
// never run on the goroutine that dispatches network messages,
// and the fixed worker count bounds the worst-case CPU spent
// on attacker-supplied input.
type Pool struct {
	jobs chan func()

	wg sync.WaitGroup
}

// NewPool starts a pool of size workers.
// The given context controls the pool's lifecycle.
func NewPool(ctx context.Context, size int) *Pool {
	if size <= 0 {
		panic(fmt.Errorf("BUG: pool size must be positive (got %d)", size))
	}

	p := &Pool{
		// Unbuffered: backpressure lands on the submitter,
		// which for message processors means pausing intake.
		jobs: make(chan func()),
	}

	p.wg.Add(size)
	for range size {
		go p.work(ctx)
	}

	return p
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			job()
		}
	}
}

// Submit queues job for execution on a pool worker.
// It blocks until a worker accepts the job
// or the given context is canceled.
//
// The job communicates its outcome itself,
// typically over a one-buffered channel it closes over.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case p.jobs <- job:
		return nil
	}
}

// Wait blocks until all workers have stopped.
// Workers stop once the context passed to [NewPool] is canceled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
