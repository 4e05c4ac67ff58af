package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWorkerPool_RunsEveryIndexOnce(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{Workers: 3})

	var mu sync.Mutex
	seen := make(map[int]int)
	err := p.Run(context.Background(), 20, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i]++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, 20)
	for i, c := range seen {
		assert.Equal(t, 1, c, "index %d", i)
	}
	stats := p.Stats()
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Completed)
	assert.Equal(t, 0, stats.Active)
}

func TestWorkerPool_WidthBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.IntRange(1, 6).Draw(t, "width")
		jobs := rapid.IntRange(0, 30).Draw(t, "jobs")

		p := NewWorkerPool(WorkerPoolConfig{Workers: width})
		var inFlight, peak atomic.Int32
		_ = p.Run(context.Background(), jobs, func(_ context.Context, _ int) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(200 * time.Microsecond)
			inFlight.Add(-1)
			return nil
		})

		if int(peak.Load()) > width {
			t.Fatalf("peak %d exceeds width %d", peak.Load(), width)
		}
		if p.Stats().PeakActive > width {
			t.Fatalf("pool peak %d exceeds width %d", p.Stats().PeakActive, width)
		}
	})
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	var panicIndex atomic.Int32
	panicIndex.Store(-1)
	var errs atomic.Int32

	p := NewWorkerPool(WorkerPoolConfig{
		Workers: 2,
		PanicHandler: func(index int, _ any) {
			panicIndex.Store(int32(index))
		},
		ErrorHandler: func(_ int, err error) {
			if errors.Is(err, ErrTaskPanicked) {
				errs.Add(1)
			}
		},
	})

	var ran atomic.Int32
	err := p.Run(context.Background(), 5, func(_ context.Context, i int) error {
		if i == 2 {
			panic("boom")
		}
		ran.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), ran.Load())
	assert.Equal(t, int32(2), panicIndex.Load())
	assert.Equal(t, int32(1), errs.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestWorkerPool_CancelledContextStillVisitsAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewWorkerPool(WorkerPoolConfig{Workers: 4})
	var visited atomic.Int32
	err := p.Run(ctx, 8, func(ctx context.Context, _ int) error {
		visited.Add(1)
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, int32(8), visited.Load())
	assert.Equal(t, int64(8), p.Stats().Failed)
}

func TestWorkerPool_Closed(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{})
	assert.Equal(t, 1, p.Workers())
	p.Close()
	assert.ErrorIs(t, p.Run(context.Background(), 1, func(context.Context, int) error { return nil }), ErrPoolClosed)
}
