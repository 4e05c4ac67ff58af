// MockBackend 是翻译后端的测试模拟实现。
//
// 默认把输入转为大写返回，支持延迟、错误注入与并发观测。
package mocks

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BackendCall 记录单次后端调用
type BackendCall struct {
	SystemPrompt string
	UserText     string
	Err          error
}

// MockBackend 实现 translation.Backend
type MockBackend struct {
	mu sync.Mutex

	translateFunc func(ctx context.Context, systemPrompt, userText string) (string, error)
	err           error
	failOn        map[string]error
	delay         time.Duration
	calls         []BackendCall

	inFlight atomic.Int32
	peak     atomic.Int32
}

// --- 构造函数和 Builder 方法 ---

// NewMockBackend 创建大写回显的 MockBackend
func NewMockBackend() *MockBackend {
	return &MockBackend{failOn: make(map[string]error)}
}

// WithTranslateFunc 设置自定义翻译函数
func (m *MockBackend) WithTranslateFunc(fn func(ctx context.Context, systemPrompt, userText string) (string, error)) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translateFunc = fn
	return m
}

// WithError 让所有调用返回 err
func (m *MockBackend) WithError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailOn 输入包含 substr 时返回 err
func (m *MockBackend) WithFailOn(substr string, err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[substr] = err
	return m
}

// WithDelay 设置每次调用的延迟, 延迟期间响应 ctx 取消
func (m *MockBackend) WithDelay(d time.Duration) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// --- translation.Backend 实现 ---

// Translate 执行模拟翻译
func (m *MockBackend) Translate(ctx context.Context, systemPrompt, userText string) (string, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if cur <= peak || m.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	m.mu.Lock()
	fn, err, delay := m.translateFunc, m.err, m.delay
	for substr, e := range m.failOn {
		if strings.Contains(userText, substr) {
			err = e
			break
		}
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	var out string
	if err == nil {
		if fn != nil {
			out, err = fn(ctx, systemPrompt, userText)
		} else {
			out = strings.ToUpper(userText)
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, BackendCall{SystemPrompt: systemPrompt, UserText: userText, Err: err})
	m.mu.Unlock()
	return out, err
}

// --- 调用记录 ---

// Calls 返回调用记录副本
func (m *MockBackend) Calls() []BackendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BackendCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// PeakInFlight 返回观测到的最大并发调用数
func (m *MockBackend) PeakInFlight() int {
	return int(m.peak.Load())
}
