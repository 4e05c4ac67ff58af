package translation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/doctranslate/internal/cache"
	"github.com/BaSui01/doctranslate/llm"
	"github.com/BaSui01/doctranslate/types"

	"go.uber.org/zap"
)

// Backend 是语言模型后端的最小契约: 一次阻塞的请求/响应交换.
type Backend interface {
	Translate(ctx context.Context, systemPrompt, userText string) (string, error)
}

// BackendFunc 将普通函数适配为 Backend
type BackendFunc func(ctx context.Context, systemPrompt, userText string) (string, error)

func (f BackendFunc) Translate(ctx context.Context, systemPrompt, userText string) (string, error) {
	return f(ctx, systemPrompt, userText)
}

// =============================================================================
// Provider 适配
// =============================================================================

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ProviderBackend 通过 llm.Provider 发送 system + user 两条消息完成翻译
type ProviderBackend struct {
	provider    llm.Provider
	model       string
	temperature float32
}

// NewProviderBackend 创建基于 Provider 的后端
func NewProviderBackend(provider llm.Provider, model string, temperature float32) *ProviderBackend {
	return &ProviderBackend{provider: provider, model: model, temperature: temperature}
}

func (b *ProviderBackend) Translate(ctx context.Context, systemPrompt, userText string) (string, error) {
	resp, err := b.provider.Completion(ctx, &llm.ChatRequest{
		Model: b.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userText},
		},
		Temperature: b.temperature,
	})
	if err != nil {
		return "", err
	}
	content, err := llm.FirstContent(resp)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, err.Error()).WithProvider(b.provider.Name())
	}
	// 部分推理模型会输出思考过程
	content = thinkBlock.ReplaceAllString(content, "")
	return strings.TrimSpace(content), nil
}

// =============================================================================
// 缓存装饰
// =============================================================================

// Cache 是翻译缓存所需的最小接口, 由 internal/cache.Manager 实现
type Cache interface {
	Key(namespace string, parts ...string) string
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

const cacheNamespace = "translation"

type cacheEntry struct {
	Text string `json:"text"`
}

// CachedBackend 以 (模型, 系统提示词, 原文) 为键缓存成功的翻译.
// 缓存读写失败只记录日志, 不影响翻译.
type CachedBackend struct {
	inner   Backend
	cache   Cache
	model   string
	ttl     time.Duration
	metrics Metrics
	logger  *zap.Logger
}

// NewCachedBackend 创建缓存后端. metrics 可为 nil.
func NewCachedBackend(inner Backend, c Cache, model string, ttl time.Duration, metrics Metrics, logger *zap.Logger) *CachedBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &CachedBackend{
		inner:   inner,
		cache:   c,
		model:   model,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "translation_cache")),
	}
}

func (b *CachedBackend) Translate(ctx context.Context, systemPrompt, userText string) (string, error) {
	key := b.cache.Key(cacheNamespace, b.model, systemPrompt, userText)

	var entry cacheEntry
	err := b.cache.GetJSON(ctx, key, &entry)
	switch {
	case err == nil:
		b.metrics.RecordCacheHit(cacheNamespace)
		return entry.Text, nil
	case cache.IsCacheMiss(err):
		b.metrics.RecordCacheMiss(cacheNamespace)
	default:
		b.metrics.RecordCacheMiss(cacheNamespace)
		b.logger.Warn("translation cache read failed", zap.Error(err))
	}

	text, err := b.inner.Translate(ctx, systemPrompt, userText)
	if err != nil {
		return "", err
	}
	if err := b.cache.SetJSON(ctx, key, cacheEntry{Text: text}, b.ttl); err != nil {
		b.logger.Warn("translation cache write failed", zap.Error(err))
	}
	return text, nil
}
