package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/doctranslate/internal/ctxkeys"
	"github.com/BaSui01/doctranslate/translation"
	"github.com/BaSui01/doctranslate/types"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultTargetLanguage 未指定目标语言时使用
const DefaultTargetLanguage = "中文"

// Translator 执行一次完整的文档翻译, 由 translation.Engine 实现.
type Translator interface {
	Translate(ctx context.Context, content, targetLanguage string, terms translation.Terminology, onProgress translation.ProgressFunc) (*translation.Output, error)
}

// Metrics 接收任务生命周期指标. internal/metrics.Collector 实现了该接口.
type Metrics interface {
	RecordTaskTransition(from, to string)
	TaskStarted()
	TaskFinished()
}

type nopMetrics struct{}

func (nopMetrics) RecordTaskTransition(string, string) {}
func (nopMetrics) TaskStarted()                        {}
func (nopMetrics) TaskFinished()                       {}

// ManagerConfig 任务管理参数
type ManagerConfig struct {
	// MaxConcurrentTasks 同时运行的流水线数, <=0 表示不限
	MaxConcurrentTasks int64 `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	// TaskTimeout 单个任务的总超时, 0 表示不限
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout"`
	// Retention 终态任务保留时长, 0 表示永不清理
	Retention time.Duration `json:"retention" yaml:"retention"`
	// CleanupSchedule 清理任务的 cron 表达式
	CleanupSchedule string `json:"cleanup_schedule" yaml:"cleanup_schedule"`
}

// DefaultManagerConfig 返回默认配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConcurrentTasks: 4,
		CleanupSchedule:    "@every 10m",
	}
}

// Manager 把翻译流水线包装为异步任务: 提交后立即返回 ID, 后台执行.
type Manager struct {
	store      *Store
	translator Translator
	config     ManagerConfig
	sem        *semaphore.Weighted
	cron       *cron.Cron
	metrics    Metrics
	logger     *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// NewManager 创建任务管理器. metrics 可为 nil.
func NewManager(translator Translator, config ManagerConfig, metrics Metrics, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	m := &Manager{
		translator: translator,
		config:     config,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "task_manager")),
	}
	m.store = NewStore(WithTransitionHook(func(id string, from, to Status) {
		m.metrics.RecordTaskTransition(string(from), string(to))
		m.logger.Debug("task transition",
			zap.String("task_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}))
	if config.MaxConcurrentTasks > 0 {
		m.sem = semaphore.NewWeighted(config.MaxConcurrentTasks)
	}

	if config.Retention > 0 {
		schedule := config.CleanupSchedule
		if schedule == "" {
			schedule = DefaultManagerConfig().CleanupSchedule
		}
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(schedule, m.evictExpired); err != nil {
			return nil, fmt.Errorf("task manager: invalid cleanup schedule %q: %w", schedule, err)
		}
		m.cron.Start()
	}

	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Store 返回底层任务存储
func (m *Manager) Store() *Store { return m.store }

// Submit 创建任务并在后台启动流水线.
// ctx 只用于传递 trace 等值, 任务的生命周期不受其取消影响.
func (m *Manager) Submit(ctx context.Context, req Request) (string, error) {
	if m.closed.Load() {
		return "", ErrManagerClosed
	}
	if strings.TrimSpace(req.Content) == "" {
		return "", types.NewError(types.ErrInvalidRequest, "content must not be empty")
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		req.TargetLanguage = DefaultTargetLanguage
	}

	t := m.store.Create(req)
	m.logger.Info("task submitted",
		zap.String("task_id", t.ID),
		zap.Int("content_length", len(req.Content)),
		zap.String("target_language", req.TargetLanguage))

	jobCtx, cancel := context.WithCancel(ctxkeys.WithTaskID(context.WithoutCancel(ctx), t.ID))
	stop := context.AfterFunc(m.baseCtx, cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop()
		defer cancel()
		m.run(jobCtx, t.ID, t.Request)
	}()
	return t.ID, nil
}

func (m *Manager) run(ctx context.Context, id string, req Request) {
	logger := m.logger.With(zap.String("task_id", id))

	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.fail(logger, id, fmt.Sprintf("task cancelled before start: %v", err))
			return
		}
		defer m.sem.Release(1)
	}

	if err := m.store.MarkRunning(id); err != nil {
		logger.Error("failed to start task", zap.Error(err))
		return
	}
	m.metrics.TaskStarted()
	defer m.metrics.TaskFinished()

	if m.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			m.fail(logger, id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	out, err := m.translator.Translate(ctx, req.Content, req.TargetLanguage, translation.Terminology(req.Terminology),
		func(done, total int, _ []translation.Result) error {
			return m.store.SetProgress(id, done, total)
		})
	if err != nil {
		m.fail(logger, id, err.Error())
		return
	}

	if err := m.store.Complete(id, Outcome{
		TranslatedContent: out.Text,
		Usage:             out.Usage,
		TotalChunks:       len(out.Results),
		FailedChunks:      out.Failed(),
	}); err != nil {
		logger.Error("failed to complete task", zap.Error(err))
		return
	}
	logger.Info("task completed",
		zap.Int("chunks", len(out.Results)),
		zap.Int("failed_chunks", out.Failed()),
		zap.Duration("elapsed", time.Since(start)))
}

func (m *Manager) fail(logger *zap.Logger, id, msg string) {
	logger.Error("task failed", zap.String("error", msg))
	if err := m.store.Fail(id, msg); err != nil {
		logger.Warn("failed to mark task failed", zap.Error(err))
	}
}

// Get 返回任务快照
func (m *Manager) Get(id string) (Task, error) {
	return m.store.Get(id)
}

// Status 返回任务状态
func (m *Manager) Status(id string) (StatusView, error) {
	t, err := m.store.Get(id)
	if err != nil {
		return StatusView{}, err
	}
	return t.view(), nil
}

// Result 返回已完成任务的结果. 未完成返回 ErrTaskNotReady, 已失败返回 ErrTaskFailed.
func (m *Manager) Result(id string) (Outcome, error) {
	t, err := m.store.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	switch t.Status {
	case StatusCompleted:
		return *t.Result, nil
	case StatusFailed:
		return Outcome{}, failed(id, t.Error)
	default:
		return Outcome{}, notReady(id, t.Status)
	}
}

// Shutdown 拒绝新任务并等待进行中的任务. ctx 到期后取消剩余任务并返回 ctx 的错误.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		m.logger.Info("task manager stopped")
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		m.logger.Warn("task manager stopped with cancelled tasks", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (m *Manager) evictExpired() {
	n := m.store.Evict(time.Now().Add(-m.config.Retention))
	if n > 0 {
		m.logger.Info("expired tasks evicted", zap.Int("count", n), zap.Duration("retention", m.config.Retention))
	}
}
