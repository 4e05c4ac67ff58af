package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/doctranslate/llm"
	"github.com/BaSui01/doctranslate/task"
	"github.com/BaSui01/doctranslate/testutil/mocks"
	"github.com/BaSui01/doctranslate/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCounter map[task.Status]int

func (c staticCounter) Counts() map[task.Status]int { return c }

func ready(t *testing.T, h *HealthHandler) (int, ServiceHealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var resp ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	// 存活探针不执行就绪检查
	h.RegisterCheck(NewProviderCheck(mocks.NewMockProvider().WithHealthy(false)))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Uptime)
	assert.Empty(t, resp.Checks)
}

func TestHealthHandler_Ready(t *testing.T) {
	redisDown := NewCheckFunc("redis", func(context.Context) error { return errors.New("dial tcp: connection refused") })
	redisUp := NewCheckFunc("redis", func(context.Context) error { return nil })

	tests := []struct {
		name       string
		provider   *mocks.MockProvider
		redis      HealthCheck
		wantCode   int
		wantStatus string
	}{
		{"all pass", mocks.NewMockProvider(), redisUp, http.StatusOK, StatusHealthy},
		{"cache down degrades", mocks.NewMockProvider(), redisDown, http.StatusOK, StatusDegraded},
		{"llm unhealthy", mocks.NewMockProvider().WithHealthy(false), redisUp, http.StatusServiceUnavailable, StatusUnhealthy},
		{"llm unhealthy and cache down", mocks.NewMockProvider().WithHealthy(false), redisDown, http.StatusServiceUnavailable, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			h.RegisterCheck(NewProviderCheck(tt.provider))
			h.RegisterOptionalCheck(tt.redis)

			code, resp := ready(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			require.Contains(t, resp.Checks, "llm:mock")
			require.Contains(t, resp.Checks, "redis")
			assert.True(t, resp.Checks["llm:mock"].Critical)
			assert.False(t, resp.Checks["redis"].Critical)
		})
	}
}

// erroringProvider 的健康检查返回上游错误
type erroringProvider struct {
	*mocks.MockProvider
	err error
}

func (p erroringProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: false}, p.err
}

func TestProviderCheck_ReportsUpstreamError(t *testing.T) {
	upstream := types.NewError(types.ErrUnauthorized, "invalid api key")
	h := NewHealthHandler(nil)
	h.RegisterCheck(NewProviderCheck(erroringProvider{MockProvider: mocks.NewMockProvider(), err: upstream}))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	res := resp.Checks["llm:mock"]
	assert.Equal(t, "fail", res.Status)
	assert.Contains(t, res.Message, "invalid api key")
}

func TestHealthHandler_ReadyIncludesTaskCounts(t *testing.T) {
	h := NewHealthHandler(zap.NewNop()).WithTaskCounter(staticCounter{
		task.StatusRunning: 2,
		task.StatusPending: 5,
	})

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, resp.Tasks[task.StatusRunning])
	assert.Equal(t, 5, resp.Tasks[task.StatusPending])
}

func TestHealthHandler_ChecksRunInParallelWithTimeout(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(ctx context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}

	h := NewHealthHandler(zap.NewNop()).WithCheckTimeout(50 * time.Millisecond)
	h.RegisterCheck(NewCheckFunc("a", slow))
	h.RegisterCheck(NewCheckFunc("b", slow))
	h.RegisterOptionalCheck(NewCheckFunc("c", slow))

	start := time.Now()
	code, resp := ready(t, h)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, int32(3), peak.Load())
	for _, name := range []string{"a", "b", "c"} {
		assert.Contains(t, resp.Checks[name].Message, "deadline exceeded")
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleVersion("1.0.0", "2026-10-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var env Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.True(t, env.Success)
	info, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", info["version"])
	assert.Equal(t, "abc123", info["git_commit"])
}
