// Package workerpool provides a bounded goroutine pool. The enrichment
// stage runs one task per finding on it so that network lookups and AST
// parsing for independent findings overlap without unbounded fan-out.
package workerpool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool manages a fixed number of worker goroutines fed from one queue.
type Pool struct {
	workers int32
	tasks   chan func()
	running atomic.Int32
	closed  atomic.Bool
	panics  atomic.Int64
	mu      sync.RWMutex // guards tasks against send-after-close
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New creates a pool with the given number of workers. Workers start
// lazily as tasks arrive. A non-positive count means GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*4),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used to report recovered task panics.
func (p *Pool) WithLogger(l *slog.Logger) *Pool {
	if l != nil {
		p.logger = l
	}
	return p
}

// Submit queues a task. It blocks while the queue is full and returns
// false if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return false
	}
	for {
		n := p.running.Load()
		if n >= p.workers {
			break
		}
		if p.running.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			break
		}
	}
	p.tasks <- task
	return true
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
	p.running.Add(-1)
}

// run executes one task; a panic is logged and counted, and the worker
// carries on with the next task.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("worker task panicked", slog.Any("panic", r))
		}
	}()
	if task != nil {
		task()
	}
}

// Running returns the current number of live workers.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Cap returns the worker capacity.
func (p *Pool) Cap() int {
	return int(p.workers)
}

// Panics returns how many tasks panicked since the pool was created.
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Close stops accepting tasks, drains the queue and waits for workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// IsClosed reports whether Close has been called.
func (p *Pool) IsClosed() bool {
	return p.closed.Load()
}

// Map applies fn to each item on the pool and returns results in input
// order. Items not yet started when ctx is done are skipped and keep the
// zero value of R; fn is expected to honour ctx itself.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if !p.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			results[i] = fn(ctx, item)
		}) {
			wg.Done()
		}
	}
	wg.Wait()
	return results
}
