package worker

import (
	"context"
	"log/slog"
	"sync"
)

type ProcessFunc[J any] func(ctx context.Context, job J) error

// Pool runs a fixed number of workers over a buffered job queue. Processor
// errors are logged; a failed job is not retried.
type Pool[J any] struct {
	name       string
	numWorkers int
	jobs       chan J
	processor  ProcessFunc[J]
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

func NewPool[J any](name string, numWorkers, bufferSize int, processor ProcessFunc[J]) *Pool[J] {
	return &Pool[J]{
		name:       name,
		numWorkers: numWorkers,
		jobs:       make(chan J, bufferSize),
		processor:  processor,
	}
}

func (p *Pool[J]) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool[J]) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.processor(ctx, job); err != nil {
				slog.Error("job failed", "pool", p.name, "worker", id, "error", err)
			}
		}
	}
}

// Submit queues job, blocking while the queue is full. It reports false if
// ctx ended first.
func (p *Pool[J]) Submit(ctx context.Context, job J) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the queue and waits for the workers. Submit must not be
// called after Stop.
func (p *Pool[J]) Stop() {
	p.stopOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
