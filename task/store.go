package task

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransitionHook 在每次状态迁移成功后调用, 调用时不持有任何锁.
type TransitionHook func(id string, from, to Status)

// Store 是内存任务状态机. 每条记录一把锁, map 本身一把读写锁.
// 进程重启后数据丢失.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	hook    TransitionHook
	now     func() time.Time
}

type record struct {
	mu   sync.Mutex
	task Task
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTransitionHook 注册状态迁移回调
func WithTransitionHook(hook TransitionHook) StoreOption {
	return func(s *Store) { s.hook = hook }
}

// WithClock 替换时钟, 用于测试
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 创建 Pending 任务并返回快照. 术语表会被复制.
func (s *Store) Create(req Request) Task {
	now := s.now()
	req.Terminology = maps.Clone(req.Terminology)
	r := &record{task: Task{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	s.mu.Lock()
	s.records[r.task.ID] = r
	s.mu.Unlock()

	return r.task.snapshot()
}

// Get 返回任务快照
func (s *Store) Get(id string) (Task, error) {
	r, ok := s.lookup(id)
	if !ok {
		return Task{}, notFound(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.task.snapshot(), nil
}

// MarkRunning 将任务从 Pending 迁移到 Running
func (s *Store) MarkRunning(id string) error {
	return s.transition(id, StatusRunning, func(t *Task, now time.Time) {
		t.StartedAt = &now
	})
}

// Complete 将任务从 Running 迁移到 Completed 并保存结果
func (s *Store) Complete(id string, outcome Outcome) error {
	return s.transition(id, StatusCompleted, func(t *Task, now time.Time) {
		t.Result = &outcome
		t.Progress.CompletedGroups = t.Progress.TotalGroups
		t.CompletedAt = &now
	})
}

// Fail 将任务迁移到 Failed, 丢弃任何部分结果
func (s *Store) Fail(id string, errMsg string) error {
	return s.transition(id, StatusFailed, func(t *Task, now time.Time) {
		t.Result = nil
		t.Error = errMsg
		t.CompletedAt = &now
	})
}

// SetProgress 更新进度, 仅在 Running 状态下生效
func (s *Store) SetProgress(id string, completed, total int) error {
	r := s.mustLookup(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.task.Status != StatusRunning {
		return invalidTransition(id, r.task.Status, r.task.Status)
	}
	r.task.Progress = Progress{CompletedGroups: completed, TotalGroups: total}
	r.task.UpdatedAt = s.now()
	return nil
}

// Evict 删除在 before 之前结束的终态任务, 返回删除数量
func (s *Store) Evict(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.records {
		r.mu.Lock()
		expired := r.task.IsTerminal() && r.task.UpdatedAt.Before(before)
		r.mu.Unlock()
		if expired {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// List 返回按创建时间排序的任务快照, limit <= 0 表示不限
func (s *Store) List(status Status, limit int) []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.records))
	for _, r := range s.records {
		r.mu.Lock()
		if status == "" || r.task.Status == status {
			out = append(out, r.task.snapshot())
		}
		r.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Counts 返回各状态的任务数, 四种状态总是存在
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[Status]int{StatusPending: 0, StatusRunning: 0, StatusCompleted: 0, StatusFailed: 0}
	for _, r := range s.records {
		r.mu.Lock()
		counts[r.task.Status]++
		r.mu.Unlock()
	}
	return counts
}

// transition 是所有状态迁移的唯一入口
func (s *Store) transition(id string, to Status, apply func(*Task, time.Time)) error {
	r := s.mustLookup(id)

	r.mu.Lock()
	from := r.task.Status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return invalidTransition(id, from, to)
	}
	now := s.now()
	r.task.Status = to
	r.task.UpdatedAt = now
	apply(&r.task, now)
	r.mu.Unlock()

	if s.hook != nil {
		s.hook(id, from, to)
	}
	return nil
}

func (s *Store) lookup(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// mustLookup 修改不存在的任务属于编程错误
func (s *Store) mustLookup(id string) *record {
	r, ok := s.lookup(id)
	if !ok {
		panic(fmt.Sprintf("task: mutation of unknown task %q", id))
	}
	return r
}
