package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/doctranslate/api"
	"github.com/BaSui01/doctranslate/task"
	"github.com/BaSui01/doctranslate/testutil"
	"github.com/BaSui01/doctranslate/translation"
	"github.com/BaSui01/doctranslate/types"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedTranslator 在 release 关闭前阻塞, 之后返回大写内容或 err
type gatedTranslator struct {
	release chan struct{}
	err     error
}

func (g *gatedTranslator) Translate(ctx context.Context, content, _ string, _ translation.Terminology, onProgress translation.ProgressFunc) (*translation.Output, error) {
	_ = onProgress(0, 2, nil)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	_ = onProgress(1, 2, nil)
	_ = onProgress(2, 2, nil)
	return &translation.Output{
		Text:    strings.ToUpper(content),
		Usage:   translation.Usage{InputTokens: 5, OutputTokens: 7},
		Results: []translation.Result{{ChunkID: 0, Succeeded: true}, {ChunkID: 1, Succeeded: false}},
	}, nil
}

type fixedEstimator time.Duration

func (f fixedEstimator) EstimateProcessingTime(string) (time.Duration, error) {
	return time.Duration(f), nil
}

// runeCounter 每个字符算一个 token
type runeCounter struct{ err error }

func (c runeCounter) CountTokens(text string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	return len([]rune(text)), nil
}

type handlerFixture struct {
	server     *httptest.Server
	manager    *task.Manager
	translator *gatedTranslator
}

func newHandlerFixture(t *testing.T, cfg TranslationHandlerConfig, counter TokenCounter) *handlerFixture {
	t.Helper()

	tr := &gatedTranslator{release: make(chan struct{})}
	m, err := task.NewManager(tr, task.ManagerConfig{MaxConcurrentTasks: 2}, nil, zap.NewNop())
	require.NoError(t, err)

	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 10 * time.Millisecond
	}
	h := NewTranslationHandler(m, fixedEstimator(90*time.Second), counter, cfg, zap.NewNop())

	r := chi.NewRouter()
	r.Route("/api/v1/translation", h.Routes)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		select {
		case <-tr.release:
		default:
			close(tr.release)
		}
		_ = m.Shutdown(context.Background())
	})
	return &handlerFixture{server: srv, manager: m, translator: tr}
}

func (f *handlerFixture) release() { close(f.translator.release) }

func (f *handlerFixture) post(t *testing.T, body string) (*http.Response, Response) {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/api/v1/translation/start", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decodeEnvelope(t, resp)
}

func (f *handlerFixture) get(t *testing.T, path string) (*http.Response, Response) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp, decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

// decodeData 把 envelope 中的 data 重新解码为具体类型
func decodeData[T any](t *testing.T, env Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(testutil.MustJSON(env.Data), &out))
	return out
}

func (f *handlerFixture) start(t *testing.T, content string) api.TaskCreationResponse {
	t.Helper()
	resp, env := f.post(t, string(testutil.MustJSON(api.TranslationRequest{Content: content})))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	return decodeData[api.TaskCreationResponse](t, env)
}

// waitRunning 等待任务开始并上报分组总数
func (f *handlerFixture) waitRunning(t *testing.T, id string) {
	t.Helper()
	testutil.AssertEventuallyTrue(t, func() bool {
		tk, err := f.manager.Get(id)
		return err == nil && tk.Status == task.StatusRunning && tk.Progress.TotalGroups > 0
	}, 5*time.Second)
}

func (f *handlerFixture) waitStatus(t *testing.T, id string, want task.Status) {
	t.Helper()
	testutil.AssertEventuallyTrue(t, func() bool {
		tk, err := f.manager.Get(id)
		return err == nil && tk.Status == want
	}, 5*time.Second)
}

// =============================================================================
// 🧪 启动任务
// =============================================================================

func TestHandleStart_Accepted(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)

	resp, env := f.post(t, `{"content":"# Title\n\nBody","target_language":"English","terminology":{"Title":"标题"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, env.Success)

	created := decodeData[api.TaskCreationResponse](t, env)
	require.NotEmpty(t, created.TaskID)
	assert.Equal(t, string(task.StatusPending), created.Status)
	assert.Equal(t, f.server.URL+"/api/v1/translation/status/"+created.TaskID, created.StatusURL)
	assert.Equal(t, f.server.URL+"/api/v1/translation/result/"+created.TaskID, created.ResultURL)
	assert.True(t, strings.HasPrefix(created.ProgressURL, "ws://"))
	assert.True(t, strings.HasSuffix(created.ProgressURL, "/progress/"+created.TaskID))
	assert.Equal(t, 90, created.EstimatedSeconds)
	assert.Equal(t, created.StatusURL, resp.Header.Get("Location"))

	tk, err := f.manager.Get(created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "English", tk.Request.TargetLanguage)
	assert.Equal(t, "标题", tk.Request.Terminology["Title"])
}

func TestHandleStart_DefaultLanguage(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)

	created := f.start(t, "hello")
	tk, err := f.manager.Get(created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.DefaultTargetLanguage, tk.Request.TargetLanguage)
}

func TestHandleStart_Rejected(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{MaxContentTokens: 10}, runeCounter{})

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    types.ErrorCode
	}{
		{"missing content", "application/json", `{"target_language":"English"}`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"blank content", "application/json", `{"content":"   \n  "}`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"unknown field", "application/json", `{"content":"x","model":"gpt"}`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"malformed json", "application/json", `{"content":`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"language too long", "application/json", `{"content":"x","target_language":"` + strings.Repeat("a", 65) + `"}`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"too many tokens", "application/json", `{"content":"` + strings.Repeat("字", 11) + `"}`, http.StatusBadRequest, types.ErrContextTooLong},
		{"wrong content type", "text/plain", `{"content":"x"}`, http.StatusUnsupportedMediaType, types.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(f.server.URL+"/api/v1/translation/start", tt.contentType, strings.NewReader(tt.body))
			require.NoError(t, err)
			env := decodeEnvelope(t, resp)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
		})
	}

	assert.Empty(t, f.manager.Store().List("", 0))
}

func TestHandleStart_TokenizerError(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{MaxContentTokens: 10}, runeCounter{err: errors.New("bpe unavailable")})

	resp, env := f.post(t, `{"content":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, string(types.ErrTokenizerError), env.Error.Code)
}

func TestHandleStart_AfterShutdown(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)
	require.NoError(t, f.manager.Shutdown(context.Background()))

	resp, env := f.post(t, `{"content":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, env.Error.Retryable)
}

func TestAbsoluteURL_ForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/translation/start", nil)
	r.Header.Set("X-Forwarded-Proto", "https")

	assert.Equal(t, "https://example.com/api/v1/translation/status/abc", absoluteURL(r, "status", "abc", false))
	assert.Equal(t, "wss://example.com/api/v1/translation/progress/abc", absoluteURL(r, "progress", "abc", true))
}

// =============================================================================
// 🧪 状态与结果
// =============================================================================

func TestHandleStatus(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)

	resp, env := f.get(t, "/api/v1/translation/status/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(types.ErrTaskNotFound), env.Error.Code)

	created := f.start(t, "hello")
	f.waitRunning(t, created.TaskID)

	resp, env = f.get(t, "/api/v1/translation/status/"+created.TaskID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeData[api.TaskStatusResponse](t, env)
	assert.Equal(t, created.TaskID, status.TaskID)
	assert.Equal(t, string(task.StatusRunning), status.Status)
	assert.Equal(t, 2, status.Progress.TotalGroups)
}

func TestHandleResult_Lifecycle(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)
	created := f.start(t, "hello")

	resp, env := f.get(t, "/api/v1/translation/result/"+created.TaskID)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrTaskNotReady), env.Error.Code)
	assert.True(t, env.Error.Retryable)
	assert.Contains(t, env.Error.Message, created.TaskID)
	assert.Nil(t, env.Data)

	f.release()
	f.waitStatus(t, created.TaskID, task.StatusCompleted)

	resp, env = f.get(t, "/api/v1/translation/result/"+created.TaskID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeData[api.TranslationResponse](t, env)
	assert.Equal(t, "HELLO", result.TranslatedContent)
	assert.Equal(t, "hello", result.OriginalContent)
	assert.Equal(t, string(task.StatusCompleted), result.Status)
	assert.Equal(t, 5, result.Usage.InputTokens)
	assert.Equal(t, 7, result.Usage.OutputTokens)
	assert.Equal(t, 2, result.TotalChunks)
	assert.Equal(t, 1, result.FailedChunks)
}

func TestHandleResult_FailedTask(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)
	f.translator.err = errors.New("chunking exploded")

	created := f.start(t, "hello")
	f.release()
	f.waitStatus(t, created.TaskID, task.StatusFailed)

	resp, env := f.get(t, "/api/v1/translation/result/"+created.TaskID)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(types.ErrTaskFailed), env.Error.Code)
	assert.Contains(t, env.Error.Message, "chunking exploded")

	resp, env = f.get(t, "/api/v1/translation/status/"+created.TaskID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeData[api.TaskStatusResponse](t, env)
	assert.Equal(t, string(task.StatusFailed), status.Status)
	assert.Contains(t, status.Error, "chunking exploded")
}

func TestHandleResult_NotFound(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)

	resp, env := f.get(t, "/api/v1/translation/result/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(types.ErrTaskNotFound), env.Error.Code)
}

// =============================================================================
// 🧪 WebSocket 进度
// =============================================================================

func TestHandleProgress_StreamsUntilCompletion(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)
	created := f.start(t, "hello")
	f.waitRunning(t, created.TaskID)

	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	conn, _, err := websocket.Dial(ctx, created.ProgressURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var events []api.ProgressEvent
	readEvent := func() error {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev api.ProgressEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
		return nil
	}

	require.NoError(t, readEvent())
	assert.Equal(t, string(task.StatusRunning), events[0].Status)

	f.release()

	for {
		if err = readEvent(); err != nil {
			break
		}
	}
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	last := events[len(events)-1]
	assert.Equal(t, created.TaskID, last.TaskID)
	assert.Equal(t, string(task.StatusCompleted), last.Status)
	assert.Equal(t, 2, last.CompletedGroups)
	assert.InDelta(t, 100.0, last.Percent, 0.001)

	// 只推送变化的事件
	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, events[i-1], events[i])
	}
}

func TestHandleProgress_TerminalTaskClosesImmediately(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)
	created := f.start(t, "hello")
	f.release()
	f.waitStatus(t, created.TaskID, task.StatusCompleted)

	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	conn, _, err := websocket.Dial(ctx, created.ProgressURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev api.ProgressEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, string(task.StatusCompleted), ev.Status)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleProgress_UnknownTask(t *testing.T) {
	f := newHandlerFixture(t, TranslationHandlerConfig{}, nil)

	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/v1/translation/progress/missing"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
