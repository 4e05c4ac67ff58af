// Package pool provides a fixed-width worker pool for bounded concurrency.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolClosed   = errors.New("pool is closed")
	ErrTaskPanicked = errors.New("task panicked")
)

// Task processes the job at index. Each index is handed to exactly one worker.
type Task func(ctx context.Context, index int) error

// WorkerPoolConfig configures the pool.
type WorkerPoolConfig struct {
	Workers int `json:"workers" yaml:"workers"`
	// PanicHandler receives the job index and the recovered value.
	PanicHandler func(index int, recovered any) `json:"-" yaml:"-"`
	// ErrorHandler receives every non-nil task error, panics included.
	ErrorHandler func(index int, err error) `json:"-" yaml:"-"`
}

// WorkerPool runs a fixed number of workers fed by a job queue.
// A pool can serve several Run calls, sequential or concurrent; the
// width bound applies per Run.
type WorkerPool struct {
	workers      int
	panicHandler func(int, any)
	errorHandler func(int, error)
	closed       atomic.Bool

	// Metrics
	active    atomic.Int32
	peak      atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

// NewWorkerPool creates a pool. Workers below 1 is treated as 1.
func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &WorkerPool{
		workers:      cfg.Workers,
		panicHandler: cfg.PanicHandler,
		errorHandler: cfg.ErrorHandler,
	}
}

// Workers returns the configured width.
func (p *WorkerPool) Workers() int { return p.workers }

// Run schedules jobs 0..n-1 onto min(Workers, n) goroutines and blocks until
// every job has run. Jobs are not skipped on ctx cancellation: the task is
// expected to observe ctx itself so that every index is accounted for.
func (p *WorkerPool) Run(ctx context.Context, n int, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if n <= 0 {
		return nil
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	p.submitted.Add(int64(n))

	width := min(p.workers, n)
	var g errgroup.Group
	for w := 0; w < width; w++ {
		g.Go(func() error {
			for index := range jobs {
				p.execute(ctx, index, task)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *WorkerPool) execute(ctx context.Context, index int, task Task) {
	cur := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer p.active.Add(-1)

	err := p.safeCall(ctx, index, task)
	if err != nil {
		p.failed.Add(1)
		if p.errorHandler != nil {
			p.errorHandler(index, err)
		}
		return
	}
	p.completed.Add(1)
}

func (p *WorkerPool) safeCall(ctx context.Context, index int, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.panicHandler != nil {
				p.panicHandler(index, r)
			}
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task(ctx, index)
}

// Close rejects further Run calls.
func (p *WorkerPool) Close() {
	p.closed.Store(true)
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:    p.workers,
		Active:     int(p.active.Load()),
		PeakActive: int(p.peak.Load()),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Panicked:   p.panicked.Load(),
	}
}

// WorkerPoolStats contains pool statistics.
type WorkerPoolStats struct {
	Workers    int   `json:"workers"`
	Active     int   `json:"active"`
	PeakActive int   `json:"peak_active"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Panicked   int64 `json:"panicked"`
}
