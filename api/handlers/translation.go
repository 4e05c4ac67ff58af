package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/doctranslate/api"
	"github.com/BaSui01/doctranslate/task"
	"github.com/BaSui01/doctranslate/types"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// =============================================================================
// 🌍 翻译任务 Handler
// =============================================================================

// TaskService 是 handler 依赖的任务操作, 由 task.Manager 实现
type TaskService interface {
	Submit(ctx context.Context, req task.Request) (string, error)
	Get(id string) (task.Task, error)
	Result(id string) (task.Outcome, error)
}

// Estimator 估计处理耗时并统计 token, 由 translation.Engine 与 tokenizer 组合实现
type Estimator interface {
	EstimateProcessingTime(content string) (time.Duration, error)
}

// TokenCounter 统计文本 token 数
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// TranslationHandlerConfig handler 参数
type TranslationHandlerConfig struct {
	// 单次请求允许的最大 token 数, 0 表示不限
	MaxContentTokens int
	// WebSocket 进度推送的轮询间隔
	ProgressInterval time.Duration
	// WebSocket 允许的 Origin 模式, 为空时只允许同源
	OriginPatterns []string
}

// TranslationHandler 翻译任务处理器
type TranslationHandler struct {
	tasks     TaskService
	estimator Estimator
	counter   TokenCounter
	config    TranslationHandlerConfig
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewTranslationHandler 创建翻译任务处理器. estimator 与 counter 可为 nil.
func NewTranslationHandler(tasks TaskService, estimator Estimator, counter TokenCounter, config TranslationHandlerConfig, logger *zap.Logger) *TranslationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 500 * time.Millisecond
	}
	return &TranslationHandler{
		tasks:     tasks,
		estimator: estimator,
		counter:   counter,
		config:    config,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With(zap.String("handler", "translation")),
	}
}

// Routes 注册翻译相关路由
func (h *TranslationHandler) Routes(r chi.Router) {
	r.Post("/start", h.HandleStart)
	r.Get("/status/{id}", h.HandleStatus)
	r.Get("/result/{id}", h.HandleResult)
	r.Get("/progress/{id}", h.HandleProgress)
}

// HandleStart 提交翻译任务
// @Summary 启动异步翻译任务
// @Description 提交文档后立即返回任务 ID, 翻译在后台进行
// @Tags 翻译
// @Accept json
// @Produce json
// @Param request body api.TranslationRequest true "翻译请求"
// @Success 202 {object} api.TaskCreationResponse "任务已受理"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/translation/start [post]
func (h *TranslationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.TranslationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := h.validateRequest(&req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	id, err := h.tasks.Submit(r.Context(), task.Request{
		Content:        req.Content,
		TargetLanguage: strings.TrimSpace(req.TargetLanguage),
		Terminology:    req.Terminology,
	})
	if err != nil {
		if errors.Is(err, task.ErrManagerClosed) {
			err = types.NewError(types.ErrInternalError, "service is shutting down").
				WithHTTPStatus(http.StatusServiceUnavailable).
				WithRetryable(true).
				WithCause(err)
		}
		WriteError(w, r, err, h.logger)
		return
	}

	resp := api.TaskCreationResponse{
		TaskID:           id,
		Status:           string(task.StatusPending),
		StatusURL:        absoluteURL(r, "status", id, false),
		ResultURL:        absoluteURL(r, "result", id, false),
		ProgressURL:      absoluteURL(r, "progress", id, true),
		EstimatedSeconds: h.estimate(req.Content),
	}
	h.logger.Info("translation task accepted",
		zap.String("task_id", id),
		zap.Int("content_length", len(req.Content)),
		zap.Int("estimated_seconds", resp.EstimatedSeconds))

	w.Header().Set("Location", resp.StatusURL)
	WriteData(w, r, http.StatusAccepted, resp)
}

func (h *TranslationHandler) validateRequest(req *api.TranslationRequest) error {
	if err := h.validate.Struct(req); err != nil {
		return types.NewError(types.ErrInvalidRequest, validationMessage(err)).WithCause(err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return types.NewError(types.ErrInvalidRequest, "content must not be blank")
	}
	if h.counter == nil || h.config.MaxContentTokens <= 0 {
		return nil
	}
	n, err := h.counter.CountTokens(req.Content)
	if err != nil {
		return types.NewError(types.ErrTokenizerError, "failed to count content tokens").WithCause(err)
	}
	if n > h.config.MaxContentTokens {
		return types.NewError(types.ErrContextTooLong,
			fmt.Sprintf("content has %d tokens, limit is %d", n, h.config.MaxContentTokens))
	}
	return nil
}

func (h *TranslationHandler) estimate(content string) int {
	if h.estimator == nil {
		return 0
	}
	d, err := h.estimator.EstimateProcessingTime(content)
	if err != nil {
		h.logger.Warn("processing time estimate failed", zap.Error(err))
		return 0
	}
	return int(d / time.Second)
}

// HandleStatus 查询任务状态
// @Summary 查询翻译任务状态
// @Tags 翻译
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} api.TaskStatusResponse "任务状态"
// @Failure 404 {object} Response "任务不存在"
// @Router /api/v1/translation/status/{id} [get]
func (h *TranslationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, statusResponse(t))
}

// HandleResult 获取翻译结果. 任务未结束时返回 202 与 TASK_NOT_READY 错误信封.
// @Summary 获取翻译结果
// @Tags 翻译
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} api.TranslationResponse "翻译结果"
// @Success 202 {object} Response "任务仍在处理中 (TASK_NOT_READY)"
// @Failure 404 {object} Response "任务不存在"
// @Failure 409 {object} Response "任务已失败"
// @Router /api/v1/translation/result/{id} [get]
func (h *TranslationHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	out, err := h.tasks.Result(id)
	if errors.Is(err, task.ErrTaskNotReady) {
		w.Header().Set("Retry-After", "5")
	}
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	t, err := h.tasks.Get(id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.TranslationResponse{
		TaskID:            t.ID,
		Status:            string(t.Status),
		TranslatedContent: out.TranslatedContent,
		OriginalContent:   t.Request.Content,
		TargetLanguage:    t.Request.TargetLanguage,
		Usage: api.UsageInfo{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		},
		TotalChunks:  out.TotalChunks,
		FailedChunks: out.FailedChunks,
	})
}

// HandleProgress 通过 WebSocket 推送任务进度, 任务结束后以正常关闭码断开.
// @Summary 订阅翻译进度
// @Tags 翻译
// @Param id path string true "任务 ID"
// @Success 101 {object} api.ProgressEvent "进度事件流"
// @Failure 404 {object} Response "任务不存在"
// @Router /api/v1/translation/progress/{id} [get]
func (h *TranslationHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.tasks.Get(id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	// 长连接不受服务器写超时限制
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("task_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只接收, CloseRead 负责处理控制帧并在对端断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(h.config.ProgressInterval)
	defer ticker.Stop()

	var last api.ProgressEvent
	for first := true; ; first = false {
		ev := progressEvent(t)
		if first || ev != last {
			if err := writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("progress stream closed", zap.String("task_id", id), zap.Error(err))
				return
			}
			last = ev
		}
		if t.IsTerminal() {
			conn.Close(websocket.StatusNormalClosure, string(t.Status))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t, err = h.tasks.Get(id)
		if err != nil {
			// 任务在订阅期间被清理
			conn.Close(websocket.StatusGoingAway, "task evicted")
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev api.ProgressEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, body)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func statusResponse(t task.Task) api.TaskStatusResponse {
	return api.TaskStatusResponse{
		TaskID: t.ID,
		Status: string(t.Status),
		Error:  t.Error,
		Progress: api.ProgressInfo{
			CompletedGroups: t.Progress.CompletedGroups,
			TotalGroups:     t.Progress.TotalGroups,
			Percent:         t.Progress.Percent(),
		},
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func progressEvent(t task.Task) api.ProgressEvent {
	return api.ProgressEvent{
		TaskID:          t.ID,
		Status:          string(t.Status),
		CompletedGroups: t.Progress.CompletedGroups,
		TotalGroups:     t.Progress.TotalGroups,
		Percent:         t.Progress.Percent(),
		Error:           t.Error,
	}
}

// absoluteURL 基于当前请求构造同级端点的绝对地址
func absoluteURL(r *http.Request, endpoint, id string, ws bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	if ws {
		scheme = strings.Replace(scheme, "http", "ws", 1)
	}

	base := strings.TrimSuffix(r.URL.Path, "/start")
	return fmt.Sprintf("%s://%s%s/%s/%s", scheme, r.Host, base, endpoint, id)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag())
}
