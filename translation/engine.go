package translation

import (
	"context"
	"time"

	"github.com/BaSui01/doctranslate/internal/ctxkeys"
	"github.com/BaSui01/doctranslate/llm/tokenizer"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// 默认参数
const (
	DefaultChunkTokenLimit   = 500
	DefaultModelMaxTokens    = 48000
	DefaultGroupTokenRatio   = 0.35
	DefaultMaxGroupSize      = 4
	DefaultMinGroupSize      = 1
	DefaultMaxParallelGroups = 10
	DefaultRequestTimeout    = 120 * time.Second

	// 每个分块的处理时间估计
	estimatedTimePerChunk = 30 * time.Second
)

// EngineConfig 汇总流水线各阶段参数
type EngineConfig struct {
	ChunkTokenLimit int              `json:"chunk_token_limit" yaml:"chunk_token_limit"`
	Grouper         GrouperConfig    `json:"grouper" yaml:"grouper"`
	Dispatcher      DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`
}

// DefaultEngineConfig 返回默认流水线参数
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ChunkTokenLimit: DefaultChunkTokenLimit,
		Grouper: GrouperConfig{
			MaxGroupSize:    DefaultMaxGroupSize,
			MinGroupSize:    DefaultMinGroupSize,
			ModelMaxTokens:  DefaultModelMaxTokens,
			GroupTokenRatio: DefaultGroupTokenRatio,
		},
		Dispatcher: DispatcherConfig{
			MaxParallelGroups: DefaultMaxParallelGroups,
			RequestTimeout:    DefaultRequestTimeout,
		},
	}
}

// Engine 串联 分块 -> 分组 -> 并行调度 -> 重组.
// Engine 无状态, 可被多个并发翻译共享.
type Engine struct {
	chunker    *Chunker
	grouper    *Grouper
	dispatcher *Dispatcher
	metrics    Metrics
	tracing    *tracing
	logger     *zap.Logger
}

// NewEngine 创建翻译引擎. metrics 可为 nil.
func NewEngine(cfg EngineConfig, backend Backend, tok tokenizer.Tokenizer, metrics Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Engine{
		chunker:    NewChunker(cfg.ChunkTokenLimit, tok, logger),
		grouper:    NewGrouper(cfg.Grouper, logger),
		dispatcher: NewDispatcher(backend, tok, cfg.Dispatcher, metrics, logger),
		metrics:    metrics,
		tracing:    newTracing(),
		logger:     logger.With(zap.String("component", "translation_engine")),
	}
}

// Translate 翻译整篇文档.
// 只有分块失败会返回错误; 后端失败体现在 Output 的失败块中.
func (e *Engine) Translate(ctx context.Context, content, targetLanguage string, terms Terminology, onProgress ProgressFunc) (*Output, error) {
	start := time.Now()
	logger := e.logger.With(ctxkeys.Fields(ctx)...)
	ctx, span := e.tracing.start(ctx, "translate",
		attribute.Int("content_length", len(content)),
		attribute.String("target_language", targetLanguage))

	chunks, err := e.chunk(ctx, content)
	if err != nil {
		e.metrics.RecordPipeline(PipelineFailed, time.Since(start), 0)
		endSpan(span, err)
		logger.Error("translation aborted", zap.Error(err))
		return nil, err
	}

	_, groupSpan := e.tracing.start(ctx, "group", attribute.Int("chunks", len(chunks)))
	groups := e.grouper.Group(chunks)
	groupSpan.SetAttributes(attribute.Int("groups", len(groups)))
	groupSpan.End()

	results := e.dispatcher.Dispatch(ctx, groups, targetLanguage, terms, onProgress)

	_, assembleSpan := e.tracing.start(ctx, "assemble", attribute.Int("results", len(results)))
	out := Assemble(results)
	assembleSpan.SetAttributes(
		attribute.Int("input_tokens", out.Usage.InputTokens),
		attribute.Int("output_tokens", out.Usage.OutputTokens))
	assembleSpan.End()

	status := PipelineSuccess
	switch failed := out.Failed(); {
	case failed == len(out.Results):
		status = PipelineFailed
	case failed > 0:
		status = PipelinePartial
	}
	elapsed := time.Since(start)
	e.metrics.RecordPipeline(status, elapsed, len(chunks))
	span.SetAttributes(attribute.String("status", status))
	span.End()

	logger.Info("translation finished",
		zap.String("status", status),
		zap.Int("chunks", len(chunks)),
		zap.Int("groups", len(groups)),
		zap.Int("failed_chunks", out.Failed()),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Duration("elapsed", elapsed))

	return &out, nil
}

func (e *Engine) chunk(ctx context.Context, content string) ([]Chunk, error) {
	ctx, span := e.tracing.start(ctx, "chunk")
	chunks, err := e.chunker.Chunk(content)
	if err == nil {
		span.SetAttributes(attribute.Int("chunks", len(chunks)))
		e.tracing.addChunks(ctx, len(chunks))
	}
	endSpan(span, err)
	return chunks, err
}

// EstimateProcessingTime 按分块数粗略估计处理耗时
func (e *Engine) EstimateProcessingTime(content string) (time.Duration, error) {
	chunks, err := e.chunker.Chunk(content)
	if err != nil {
		return 0, err
	}
	return time.Duration(len(chunks)) * estimatedTimePerChunk, nil
}
