package translation

import "time"

// Metrics 接收流水线指标. internal/metrics.Collector 实现了该接口.
type Metrics interface {
	RecordBackendCall(succeeded bool, duration time.Duration, inputTokens, outputTokens int)
	RecordGroup(succeeded bool, size int)
	RecordPipeline(status string, duration time.Duration, chunks int)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// NopMetrics 丢弃所有指标
type NopMetrics struct{}

func (NopMetrics) RecordBackendCall(bool, time.Duration, int, int) {}
func (NopMetrics) RecordGroup(bool, int)                           {}
func (NopMetrics) RecordPipeline(string, time.Duration, int)       {}
func (NopMetrics) RecordCacheHit(string)                           {}
func (NopMetrics) RecordCacheMiss(string)                          {}

// 流水线结果状态
const (
	PipelineSuccess = "success"
	PipelinePartial = "partial"
	PipelineFailed  = "failed"
)
