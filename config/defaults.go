// =============================================================================
// 📦 DocTranslate 默认配置
// =============================================================================
// 提供所有配置项的默认值, 以及到各组件配置的转换
// =============================================================================
package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/doctranslate/internal/cache"
	"github.com/BaSui01/doctranslate/llm/providers"
	"github.com/BaSui01/doctranslate/task"
	"github.com/BaSui01/doctranslate/translation"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Translation: DefaultTranslationConfig(),
		LLM:         DefaultLLMConfig(),
		Redis:       DefaultRedisConfig(),
		Task:        DefaultTaskConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultTranslationConfig 返回默认翻译配置
func DefaultTranslationConfig() TranslationConfig {
	return TranslationConfig{
		Model:             "Qwen3-30B-A3B",
		Temperature:       0.3,
		DefaultLanguage:   task.DefaultTargetLanguage,
		ChunkTokenLimit:   translation.DefaultChunkTokenLimit,
		ModelMaxTokens:    translation.DefaultModelMaxTokens,
		GroupTokenRatio:   translation.DefaultGroupTokenRatio,
		MaxGroupSize:      translation.DefaultMaxGroupSize,
		MinGroupSize:      translation.DefaultMinGroupSize,
		MaxParallelGroups: translation.DefaultMaxParallelGroups,
		RequestTimeout:    translation.DefaultRequestTimeout,
		MaxContentTokens:  100000,
		CacheTTL:          24 * time.Hour,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL: "http://localhost:8000/v1",
		Timeout: 2 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		KeyPrefix:    "doctranslate:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultTaskConfig 返回默认任务配置
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		MaxConcurrent:   4,
		Timeout:         time.Hour,
		Retention:       24 * time.Hour,
		CleanupSchedule: "@every 10m",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "doctranslate",
		SampleRate:     0.1,
		Insecure:       true,
		MetricInterval: 30 * time.Second,
	}
}

// =============================================================================
// 🔀 组件配置转换
// =============================================================================

// EngineConfig 转换为流水线参数
func (c TranslationConfig) EngineConfig() translation.EngineConfig {
	return translation.EngineConfig{
		ChunkTokenLimit: c.ChunkTokenLimit,
		Grouper: translation.GrouperConfig{
			MaxGroupSize:    c.MaxGroupSize,
			MinGroupSize:    c.MinGroupSize,
			ModelMaxTokens:  c.ModelMaxTokens,
			GroupTokenRatio: c.GroupTokenRatio,
		},
		Dispatcher: translation.DispatcherConfig{
			MaxParallelGroups: c.MaxParallelGroups,
			RequestTimeout:    c.RequestTimeout,
		},
	}
}

// ProviderConfig 转换为 OpenAI 兼容 Provider 配置
func (c LLMConfig) ProviderConfig(model string) providers.OpenAIConfig {
	return providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   model,
			Timeout: c.Timeout,
		},
		RequestsPerSecond:  c.RequestsPerSecond,
		Burst:              c.Burst,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// CacheConfig 转换为缓存管理器配置
func (c RedisConfig) CacheConfig(ttl time.Duration) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Addr = c.Addr
	cfg.Password = c.Password
	cfg.DB = c.DB
	cfg.KeyPrefix = c.KeyPrefix
	cfg.DefaultTTL = ttl
	cfg.TLS = c.TLS
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		cfg.MinIdleConns = c.MinIdleConns
	}
	return cfg
}

// ManagerConfig 转换为任务管理器配置
func (c TaskConfig) ManagerConfig() task.ManagerConfig {
	return task.ManagerConfig{
		MaxConcurrentTasks: c.MaxConcurrent,
		TaskTimeout:        c.Timeout,
		Retention:          c.Retention,
		CleanupSchedule:    c.CleanupSchedule,
	}
}

// HTTPAddr 返回 HTTP 监听地址
func (c ServerConfig) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

// MetricsAddr 返回指标监听地址, 未单独配置端口时为空
func (c ServerConfig) MetricsAddr() string {
	if c.MetricsPort == 0 || c.MetricsPort == c.HTTPPort {
		return ""
	}
	return fmt.Sprintf(":%d", c.MetricsPort)
}
