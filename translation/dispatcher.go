package translation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/doctranslate/internal/pool"
	"github.com/BaSui01/doctranslate/llm/tokenizer"
	"github.com/BaSui01/doctranslate/types"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProgressFunc 在每个分组完成后调用一次. 返回的错误只会被记录, 不会中断流水线.
type ProgressFunc func(completedGroups, totalGroups int, groupResults []Result) error

// DispatcherConfig 调度参数
type DispatcherConfig struct {
	MaxParallelGroups int           `json:"max_parallel_groups" yaml:"max_parallel_groups"`
	RequestTimeout    time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// Dispatcher 以固定宽度的 worker 池并行处理分组, 组内按分块 ID 顺序串行调用后端.
type Dispatcher struct {
	backend   Backend
	tokenizer tokenizer.Tokenizer
	cfg       DispatcherConfig
	metrics   Metrics
	tracing   *tracing
	logger    *zap.Logger
}

// NewDispatcher 创建调度器. metrics 可为 nil.
func NewDispatcher(backend Backend, tok tokenizer.Tokenizer, cfg DispatcherConfig, metrics Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.MaxParallelGroups < 1 {
		cfg.MaxParallelGroups = 1
	}
	return &Dispatcher{
		backend:   backend,
		tokenizer: tok,
		cfg:       cfg,
		metrics:   metrics,
		tracing:   newTracing(),
		logger:    logger.With(zap.String("stage", "dispatch")),
	}
}

// Dispatch 翻译所有分组, 每个输入分块恰好产生一个 Result.
// 失败被转换为 Succeeded=false 的结果, 不会向调用方返回错误.
// 返回顺序为分组顺序, 重组时仍以 ChunkID 排序为准.
func (d *Dispatcher) Dispatch(ctx context.Context, groups []ChunkGroup, targetLanguage string, terms Terminology, onProgress ProgressFunc) []Result {
	if len(groups) == 0 {
		return nil
	}

	ctx, span := d.tracing.start(ctx, "dispatch",
		attribute.Int("groups", len(groups)),
		attribute.String("target_language", targetLanguage))
	defer span.End()

	systemPrompt := BuildSystemPrompt(targetLanguage, terms)
	start := time.Now()

	// 每个槽位只由处理该分组的 worker 写入
	slots := make([][]Result, len(groups))

	var (
		progressMu sync.Mutex
		completed  int
	)
	report := func(index int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		d.notify(onProgress, completed, len(groups), slots[index])
	}

	wp := pool.NewWorkerPool(pool.WorkerPoolConfig{
		Workers: d.cfg.MaxParallelGroups,
		PanicHandler: func(index int, recovered any) {
			d.logger.Error("group worker panicked",
				zap.Int("group_index", index),
				zap.Any("panic", recovered),
				zap.Stack("stack"))
		},
		ErrorHandler: func(index int, err error) {
			group := groups[index]
			d.logger.Error("group processing failed",
				zap.Int("group_index", group.Index),
				zap.Int("chunks", group.Size()),
				zap.Error(err))
			slots[index] = failAll(group.Chunks, err)
			d.metrics.RecordGroup(false, group.Size())
			report(index)
		},
	})

	d.logger.Info("dispatch started",
		zap.Int("groups", len(groups)),
		zap.Int("workers", min(wp.Workers(), len(groups))),
		zap.String("target_language", targetLanguage),
		zap.Int("terms", len(terms)))

	err := wp.Run(ctx, len(groups), func(ctx context.Context, index int) error {
		slots[index] = d.runGroup(ctx, groups[index], systemPrompt)
		report(index)
		return nil
	})
	if err != nil {
		d.logger.Error("worker pool rejected dispatch", zap.Error(err))
		for i := range slots {
			if slots[i] == nil {
				slots[i] = failAll(groups[i].Chunks, err)
			}
		}
	}

	results := make([]Result, 0, len(groups)*2)
	failed := 0
	for _, s := range slots {
		for _, r := range s {
			if !r.Succeeded {
				failed++
			}
		}
		results = append(results, s...)
	}

	span.SetAttributes(attribute.Int("results", len(results)), attribute.Int("failed", failed))
	d.logger.Info("dispatch completed",
		zap.Int("results", len(results)),
		zap.Int("failed", failed),
		zap.Int("peak_workers", wp.Stats().PeakActive),
		zap.Duration("elapsed", time.Since(start)))

	return results
}

// runGroup 顺序翻译组内分块. 第一次失败后, 该组剩余分块全部以同一错误标记失败.
func (d *Dispatcher) runGroup(ctx context.Context, group ChunkGroup, systemPrompt string) []Result {
	ctx, span := d.tracing.start(ctx, "dispatch.group",
		attribute.Int("group_index", group.Index),
		attribute.Int("chunks", group.Size()),
		attribute.Int("tokens", group.TokenTotal))

	logger := d.logger.With(zap.Int("group_index", group.Index))
	logger.Debug("group started", zap.Int("chunks", group.Size()), zap.Int("tokens", group.TokenTotal))

	results := make([]Result, 0, group.Size())
	var failure error
	for _, ch := range group.Chunks {
		if failure == nil {
			failure = ctx.Err()
		}
		if failure != nil {
			results = append(results, failedResult(ch, failure, 0))
			continue
		}

		res, err := d.translateChunk(ctx, ch, systemPrompt)
		results = append(results, res)
		if err != nil {
			failure = err
			logger.Warn("chunk translation failed, skipping rest of group",
				zap.Int("chunk_id", ch.ID),
				zap.Int("remaining", group.Size()-len(results)),
				zap.Error(err))
		}
	}

	d.metrics.RecordGroup(failure == nil, group.Size())
	endSpan(span, failure)
	logger.Debug("group completed", zap.Bool("success", failure == nil))
	return results
}

func (d *Dispatcher) translateChunk(ctx context.Context, ch Chunk, systemPrompt string) (Result, error) {
	start := time.Now()
	text, err := d.call(ctx, systemPrompt, ch.Content)
	elapsed := time.Since(start)
	d.tracing.addCall(ctx, err == nil)
	if err != nil {
		d.metrics.RecordBackendCall(false, elapsed, 0, 0)
		return failedResult(ch, err, elapsed), err
	}

	text = strings.TrimSpace(text)
	outputTokens, cerr := d.tokenizer.CountTokens(text)
	if cerr != nil {
		d.logger.Warn("failed to count output tokens", zap.Int("chunk_id", ch.ID), zap.Error(cerr))
		outputTokens = 0
	}
	d.metrics.RecordBackendCall(true, elapsed, ch.TokenCount, outputTokens)

	return Result{
		ChunkID:           ch.ID,
		OriginalContent:   ch.Content,
		TranslatedContent: text,
		InputTokens:       ch.TokenCount,
		OutputTokens:      outputTokens,
		Succeeded:         true,
		ElapsedMs:         elapsed.Milliseconds(),
	}, nil
}

type reply struct {
	text string
	err  error
}

// call 在独立 goroutine 中调用后端. 超时或取消后立即判定失败,
// 但仍等待该次调用返回, 保证同时在途的后端调用不超过 worker 数.
func (d *Dispatcher) call(ctx context.Context, systemPrompt, userText string) (string, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.cfg.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.cfg.RequestTimeout)
	}
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: types.NewError(types.ErrUpstreamError, fmt.Sprintf("backend panicked: %v", r))}
			}
		}()
		text, err := d.backend.Translate(callCtx, systemPrompt, userText)
		done <- reply{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-callCtx.Done():
	}

	err := ctx.Err()
	if err == nil {
		err = types.NewError(types.ErrUpstreamTimeout,
			fmt.Sprintf("backend call timed out after %s", d.cfg.RequestTimeout)).WithRetryable(true)
	}

	select {
	case <-done:
	default:
		start := time.Now()
		<-done
		d.logger.Warn("backend returned late after cancellation",
			zap.Duration("late_by", time.Since(start)),
			zap.Error(err))
	}
	return "", err
}

// notify 串行调用进度回调, 吞掉回调的错误与 panic
func (d *Dispatcher) notify(fn ProgressFunc, completed, total int, results []Result) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("progress callback panicked", zap.Any("panic", r))
		}
	}()
	if err := fn(completed, total, slices.Clone(results)); err != nil {
		d.logger.Warn("progress callback failed",
			zap.Int("completed_groups", completed),
			zap.Int("total_groups", total),
			zap.Error(err))
	}
}

func failedResult(ch Chunk, err error, elapsed time.Duration) Result {
	return Result{
		ChunkID:         ch.ID,
		OriginalContent: ch.Content,
		Succeeded:       false,
		Error:           err.Error(),
		ElapsedMs:       elapsed.Milliseconds(),
	}
}

func failAll(chunks []Chunk, err error) []Result {
	out := make([]Result, len(chunks))
	for i, ch := range chunks {
		out[i] = failedResult(ch, err, 0)
	}
	return out
}
