package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/doctranslate/api/handlers"
	"github.com/BaSui01/doctranslate/config"
	"github.com/BaSui01/doctranslate/internal/cache"
	"github.com/BaSui01/doctranslate/internal/metrics"
	"github.com/BaSui01/doctranslate/internal/server"
	"github.com/BaSui01/doctranslate/internal/telemetry"
	"github.com/BaSui01/doctranslate/llm"
	"github.com/BaSui01/doctranslate/llm/providers/openai"
	"github.com/BaSui01/doctranslate/llm/tokenizer"
	"github.com/BaSui01/doctranslate/task"
	"github.com/BaSui01/doctranslate/translation"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// skipAuthPaths 探活与版本端点不需要认证
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// =============================================================================
// 🔧 流水线组件
// =============================================================================

// pipeline 是 serve 与 translate 共用的翻译组件
type pipeline struct {
	tokenizer tokenizer.Tokenizer
	provider  llm.Provider
	cache     *cache.Manager
	engine    *translation.Engine
}

// newPipeline 按配置组装 tokenizer, LLM provider, 可选的 Redis 缓存与翻译引擎.
// Redis 不可用时降级为无缓存.
func newPipeline(cfg *config.Config, m translation.Metrics, logger *zap.Logger) *pipeline {
	p := &pipeline{
		tokenizer: tokenizer.ForModel(cfg.Translation.Model, logger),
		provider:  openai.NewOpenAIProvider(cfg.LLM.ProviderConfig(cfg.Translation.Model), logger),
	}

	var backend translation.Backend = translation.NewProviderBackend(p.provider, cfg.Translation.Model, cfg.Translation.Temperature)
	if cfg.Redis.Enabled {
		c, err := cache.NewManager(cfg.Redis.CacheConfig(cfg.Translation.CacheTTL), logger)
		if err != nil {
			logger.Warn("redis unavailable, translation cache disabled",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			p.cache = c
			backend = translation.NewCachedBackend(backend, c, cfg.Translation.Model, cfg.Translation.CacheTTL, m, logger)
		}
	}

	p.engine = translation.NewEngine(cfg.Translation.EngineConfig(), backend, p.tokenizer, m, logger)
	logger.Info("translation pipeline ready",
		zap.String("model", cfg.Translation.Model),
		zap.String("tokenizer", p.tokenizer.Name()),
		zap.Bool("cache", p.cache != nil))
	return p
}

// telemetryAttributes 把翻译模型写入资源属性, 便于按模型筛选 trace
func telemetryAttributes(cfg *config.Config) telemetry.Option {
	return telemetry.WithAttributes(
		attribute.String("doctranslate.model", cfg.Translation.Model),
		attribute.String("doctranslate.default_language", cfg.Translation.DefaultLanguage))
}

func (p *pipeline) Close() error {
	if p.cache != nil {
		return p.cache.Close()
	}
	return nil
}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 是翻译服务的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	pipeline  *pipeline
	tasks     *task.Manager
	collector *metrics.Collector
	otel      *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start 初始化组件并启动 HTTP 与指标服务器
func (s *Server) Start() error {
	otelProviders, err := telemetry.Init(s.cfg.Telemetry, Version, s.logger, telemetryAttributes(s.cfg))
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}
	s.otel = otelProviders

	s.collector = metrics.NewCollector("doctranslate", s.logger)
	s.pipeline = newPipeline(s.cfg, s.collector, s.logger)

	s.tasks, err = task.NewManager(s.pipeline.engine, s.cfg.Task.ManagerConfig(), s.collector, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init task manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort))
	return nil
}

// Router 构建带中间件的路由
func (s *Server) Router() http.Handler {
	health := handlers.NewHealthHandler(s.logger).WithTaskCounter(s.tasks.Store())
	if s.pipeline.provider != nil {
		health.RegisterCheck(handlers.NewProviderCheck(s.pipeline.provider))
	}
	if s.pipeline.cache != nil {
		health.RegisterOptionalCheck(handlers.NewCheckFunc("redis", s.pipeline.cache.Ping))
	}

	translationHandler := handlers.NewTranslationHandler(s.tasks, s.pipeline.engine, s.pipeline.tokenizer,
		handlers.TranslationHandlerConfig{
			MaxContentTokens: s.cfg.Translation.MaxContentTokens,
			OriginPatterns:   s.cfg.Server.CORSAllowedOrigins,
		}, s.logger)

	r := chi.NewRouter()
	r.Get("/health", health.HandleHealth)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/ready", health.HandleReady)
	r.Get("/readyz", health.HandleReady)
	r.Get("/version", health.HandleVersion(Version, BuildTime, GitCommit))
	r.Route("/api/v1/translation", translationHandler.Routes)
	if s.cfg.Server.MetricsAddr() == "" {
		r.Handle("/metrics", promhttp.Handler())
	}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	switch {
	case s.cfg.Server.JWTSecret != "":
		chain = append(chain, JWTAuth(s.cfg.Server.JWTSecret, skipAuthPaths, s.logger))
	case len(s.cfg.Server.APIKeys) > 0:
		chain = append(chain, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, true, s.logger))
	default:
		s.logger.Warn("no API keys or JWT secret configured, API is unauthenticated")
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(r, chain...)
}

func (s *Server) startHTTPServer() error {
	s.httpManager = server.NewManager(s.Router(), server.Config{
		Name:         "api",
		Addr:         s.cfg.Server.HTTPAddr(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  2 * s.cfg.Server.ReadTimeout,
		// 文档以 JSON 提交, 请求头保持默认上限
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	addr := s.cfg.Server.MetricsAddr()
	if addr == "" {
		s.logger.Info("metrics served on the API port")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// Wait 阻塞直到 ctx 结束或任一服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		return nil
	case err := <-s.httpManager.Errors():
		return fmt.Errorf("http server: %w", err)
	case err := <-metricsErrs:
		return fmt.Errorf("metrics server: %w", err)
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 依次停止接收请求, 等待进行中的任务, 再关闭外部连接
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")
	var errs []error

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	if s.tasks != nil {
		if err := s.tasks.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("task manager: %w", err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if s.pipeline != nil {
		if err := s.pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}

	if s.otel != nil {
		otelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(otelCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("Graceful shutdown finished with errors", zap.Error(err))
	} else {
		s.logger.Info("Graceful shutdown completed")
	}
	return err
}
