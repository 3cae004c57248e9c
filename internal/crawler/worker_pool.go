package crawler

import (
	"context"
	"errors"
	"sync"
)

type task func(ctx context.Context)

// workerPool bounds how many bank crawls run at once. Bank runs are
// long-lived and I/O-bound; the pool keeps politeness waits of one bank
// from serialising every other bank.
type workerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan task
	wg     sync.WaitGroup
}

func newWorkerPool(parent context.Context, concurrency, queueSize int) (*workerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &workerPool{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan task, queueSize),
	}
	pool.start(concurrency)
	return pool, nil
}

func (p *workerPool) start(concurrency int) {
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					task(p.ctx)
				}
			}
		}()
	}
}

// submit schedules a task, rejecting if the context cancels or queue is full.
func (p *workerPool) submit(ctx context.Context, fn task) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- fn:
		return nil
	}
}

// close drains the queue and stops all workers.
func (p *workerPool) close() {
	p.cancel()
	close(p.tasks)
	p.wg.Wait()
}
