package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/doctranslate/llm/tokenizer"
	"github.com/BaSui01/doctranslate/testutil"
	"github.com/BaSui01/doctranslate/testutil/mocks"
	"github.com/BaSui01/doctranslate/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// makeGroups 生成内容为 "[g<组>-c<块>]" 的分组, 块 ID 全局连续
func makeGroups(sizes ...int) []ChunkGroup {
	groups := make([]ChunkGroup, len(sizes))
	id := 0
	for gi, n := range sizes {
		grp := ChunkGroup{Index: gi}
		for ci := 0; ci < n; ci++ {
			grp.Chunks = append(grp.Chunks, Chunk{
				ID:         id,
				Content:    fmt.Sprintf("[g%d-c%d]", gi, ci),
				TokenCount: 2,
				Kind:       ChunkPrimary,
			})
			grp.TokenTotal += 2
			id++
		}
		groups[gi] = grp
	}
	return groups
}

type recordingMetrics struct {
	NopMetrics
	calls        atomic.Int32
	failedCalls  atomic.Int32
	groups       atomic.Int32
	failedGroups atomic.Int32
}

func (m *recordingMetrics) RecordBackendCall(succeeded bool, _ time.Duration, _, _ int) {
	m.calls.Add(1)
	if !succeeded {
		m.failedCalls.Add(1)
	}
}

func (m *recordingMetrics) RecordGroup(succeeded bool, _ int) {
	m.groups.Add(1)
	if !succeeded {
		m.failedGroups.Add(1)
	}
}

func newTestDispatcher(backend Backend, cfg DispatcherConfig, metrics Metrics) *Dispatcher {
	return NewDispatcher(backend, tokenizer.NewEstimatorTokenizer("test", 0), cfg, metrics, zap.NewNop())
}

func byChunkID(results []Result) map[int]Result {
	out := make(map[int]Result, len(results))
	for _, r := range results {
		out[r.ChunkID] = r
	}
	return out
}

func TestDispatcher_OneResultPerChunkWithinWidth(t *testing.T) {
	backend := mocks.NewMockBackend().WithDelay(5 * time.Millisecond)
	metrics := &recordingMetrics{}
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 3, RequestTimeout: time.Second}, metrics)

	groups := makeGroups(2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2)
	results := d.Dispatch(testutil.TestContext(t), groups, "中文", nil, nil)

	require.Len(t, results, 24)
	byID := byChunkID(results)
	assert.Len(t, byID, 24)
	for id, r := range byID {
		assert.True(t, r.Succeeded, "chunk %d", id)
		assert.Equal(t, strings.ToUpper(r.OriginalContent), r.TranslatedContent)
		assert.Equal(t, 2, r.InputTokens)
	}
	assert.LessOrEqual(t, backend.PeakInFlight(), 3)
	assert.Equal(t, 24, backend.CallCount())
	assert.Equal(t, int32(24), metrics.calls.Load())
	assert.Equal(t, int32(12), metrics.groups.Load())
	assert.Equal(t, int32(0), metrics.failedGroups.Load())
}

func TestDispatcher_SequentialWithinGroup(t *testing.T) {
	backend := mocks.NewMockBackend()
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 1, RequestTimeout: time.Second}, nil)

	d.Dispatch(context.Background(), makeGroups(5), "English", nil, nil)

	calls := backend.Calls()
	require.Len(t, calls, 5)
	for i, c := range calls {
		assert.Equal(t, fmt.Sprintf("[g0-c%d]", i), c.UserText)
	}
}

func TestDispatcher_PromptCarriesLanguageAndTerms(t *testing.T) {
	backend := mocks.NewMockBackend()
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 2}, nil)

	d.Dispatch(context.Background(), makeGroups(1), "Deutsch", Terminology{"token": "Token"}, nil)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SystemPrompt, "into Deutsch")
	assert.Contains(t, calls[0].SystemPrompt, "- token: Token")
}

func TestDispatcher_FailureStopsRestOfGroupOnly(t *testing.T) {
	boom := types.NewError(types.ErrUpstreamError, "backend exploded")
	backend := mocks.NewMockBackend().WithFailOn("[g0-c1]", boom)
	metrics := &recordingMetrics{}
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 2, RequestTimeout: time.Second}, metrics)

	results := d.Dispatch(context.Background(), makeGroups(4, 3), "中文", nil, nil)
	require.Len(t, results, 7)
	byID := byChunkID(results)

	assert.True(t, byID[0].Succeeded)
	for id := 1; id <= 3; id++ {
		assert.False(t, byID[id].Succeeded, "chunk %d", id)
		assert.Equal(t, boom.Error(), byID[id].Error)
		assert.Empty(t, byID[id].TranslatedContent)
		assert.Equal(t, 0, byID[id].InputTokens)
	}
	for id := 4; id <= 6; id++ {
		assert.True(t, byID[id].Succeeded, "chunk %d", id)
	}

	// 失败后同组剩余分块不再调用后端
	assert.Equal(t, 5, backend.CallCount())
	assert.Equal(t, int32(1), metrics.failedCalls.Load())
	assert.Equal(t, int32(1), metrics.failedGroups.Load())
}

func TestDispatcher_TimeoutFailsChunk(t *testing.T) {
	backend := BackendFunc(func(ctx context.Context, _, text string) (string, error) {
		if strings.Contains(text, "[g1-") {
			<-ctx.Done()
			return "too late", nil
		}
		return "ok", nil
	})
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 2, RequestTimeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	results := d.Dispatch(context.Background(), makeGroups(1, 2), "中文", nil, nil)
	assert.Less(t, time.Since(start), 2*time.Second)

	byID := byChunkID(results)
	require.Len(t, byID, 3)
	assert.True(t, byID[0].Succeeded)
	assert.False(t, byID[1].Succeeded)
	assert.False(t, byID[2].Succeeded)
	assert.Contains(t, byID[1].Error, string(types.ErrUpstreamTimeout))
	assert.Equal(t, byID[1].Error, byID[2].Error)
	assert.Empty(t, byID[1].TranslatedContent)
}

func TestDispatcher_TimedOutCallsStayWithinWidth(t *testing.T) {
	// 后端忽略 ctx, 超时后仍要运行满 60ms
	backend := mocks.NewMockBackend().WithTranslateFunc(
		func(_ context.Context, _, text string) (string, error) {
			time.Sleep(60 * time.Millisecond)
			return text, nil
		})
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 1, RequestTimeout: 10 * time.Millisecond}, nil)

	results := d.Dispatch(context.Background(), makeGroups(1, 1, 1, 1), "中文", nil, nil)

	require.Len(t, results, 4)
	for _, r := range results {
		assert.False(t, r.Succeeded)
		assert.Contains(t, r.Error, string(types.ErrUpstreamTimeout))
	}
	assert.Equal(t, 4, backend.CallCount())
	assert.Equal(t, 1, backend.PeakInFlight())
}

func TestDispatcher_TimedOutCallsStayWithinWidth_Parallel(t *testing.T) {
	backend := mocks.NewMockBackend().WithTranslateFunc(
		func(_ context.Context, _, text string) (string, error) {
			time.Sleep(40 * time.Millisecond)
			return text, nil
		})
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 3, RequestTimeout: 5 * time.Millisecond}, nil)

	results := d.Dispatch(context.Background(), makeGroups(2, 2, 2, 2, 2, 2, 2, 2), "中文", nil, nil)

	require.Len(t, results, 16)
	// 每组首块超时后其余块直接失败, 只有 8 次真实调用
	assert.Equal(t, 8, backend.CallCount())
	assert.LessOrEqual(t, backend.PeakInFlight(), 3)
}

func TestDispatcher_BackendPanicIsChunkFailure(t *testing.T) {
	backend := BackendFunc(func(_ context.Context, _, text string) (string, error) {
		if text == "[g0-c0]" {
			panic("kaboom")
		}
		return text, nil
	})
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 2, RequestTimeout: time.Second}, nil)

	results := d.Dispatch(context.Background(), makeGroups(2, 1), "中文", nil, nil)
	byID := byChunkID(results)
	require.Len(t, byID, 3)
	assert.False(t, byID[0].Succeeded)
	assert.Contains(t, byID[0].Error, "kaboom")
	assert.False(t, byID[1].Succeeded)
	assert.True(t, byID[2].Succeeded)
}

// panicTokenizer 在统计特定输出时 panic, 模拟组级异常
type panicTokenizer struct {
	tokenizer.Tokenizer
}

func (p panicTokenizer) CountTokens(text string) (int, error) {
	if text == "PANIC" {
		panic("tokenizer corrupted")
	}
	return p.Tokenizer.CountTokens(text)
}

func TestDispatcher_GroupPanicFailsWholeGroup(t *testing.T) {
	backend := BackendFunc(func(_ context.Context, _, text string) (string, error) {
		if text == "[g1-c1]" {
			return "PANIC", nil
		}
		return text, nil
	})
	tok := panicTokenizer{tokenizer.NewEstimatorTokenizer("test", 0)}
	d := NewDispatcher(backend, tok, DispatcherConfig{MaxParallelGroups: 2, RequestTimeout: time.Second}, nil, nil)

	var progressCalls atomic.Int32
	results := d.Dispatch(context.Background(), makeGroups(2, 3), "中文", nil,
		func(_, _ int, _ []Result) error {
			progressCalls.Add(1)
			return nil
		})

	byID := byChunkID(results)
	require.Len(t, byID, 5)
	assert.True(t, byID[0].Succeeded)
	assert.True(t, byID[1].Succeeded)
	for id := 2; id <= 4; id++ {
		assert.False(t, byID[id].Succeeded, "chunk %d", id)
		assert.Contains(t, byID[id].Error, "tokenizer corrupted")
	}
	assert.Equal(t, int32(2), progressCalls.Load())
}

func TestDispatcher_ProgressErrorsDoNotAbort(t *testing.T) {
	d := newTestDispatcher(mocks.NewMockBackend(), DispatcherConfig{MaxParallelGroups: 4, RequestTimeout: time.Second}, nil)

	var (
		mu        sync.Mutex
		completed []int
	)
	results := d.Dispatch(context.Background(), makeGroups(1, 2, 3, 1, 1), "中文", nil,
		func(done, total int, group []Result) error {
			mu.Lock()
			completed = append(completed, done)
			mu.Unlock()
			assert.Equal(t, 5, total)
			assert.NotEmpty(t, group)
			if done == 2 {
				panic("progress sink crashed")
			}
			return errors.New("progress sink unavailable")
		})

	require.Len(t, results, 8)
	for _, r := range results {
		assert.True(t, r.Succeeded)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, completed)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	backend := mocks.NewMockBackend()
	d := newTestDispatcher(backend, DispatcherConfig{MaxParallelGroups: 2, RequestTimeout: time.Second}, nil)

	results := d.Dispatch(testutil.CancelledContext(), makeGroups(2, 2), "中文", nil, nil)

	require.Len(t, results, 4)
	for _, r := range results {
		assert.False(t, r.Succeeded)
		assert.Equal(t, context.Canceled.Error(), r.Error)
	}
	assert.Equal(t, 0, backend.CallCount())
}

func TestDispatcher_NoGroups(t *testing.T) {
	d := newTestDispatcher(mocks.NewMockBackend(), DispatcherConfig{}, nil)
	assert.Empty(t, d.Dispatch(context.Background(), nil, "中文", nil, nil))
}
