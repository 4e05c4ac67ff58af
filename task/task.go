package task

import (
	"maps"
	"time"

	"github.com/BaSui01/doctranslate/translation"
)

// Request 是提交时的请求快照
type Request struct {
	Content        string            `json:"content"`
	TargetLanguage string            `json:"target_language"`
	Terminology    map[string]string `json:"terminology,omitempty"`
}

// Outcome 是已完成任务的结果
type Outcome struct {
	TranslatedContent string            `json:"translated_content"`
	Usage             translation.Usage `json:"usage"`
	TotalChunks       int               `json:"total_chunks"`
	FailedChunks      int               `json:"failed_chunks"`
}

// Progress 以分组为单位的进度
type Progress struct {
	CompletedGroups int `json:"completed_groups"`
	TotalGroups     int `json:"total_groups"`
}

// Percent 返回 0-100 的完成百分比
func (p Progress) Percent() float64 {
	if p.TotalGroups == 0 {
		return 0
	}
	return float64(p.CompletedGroups) * 100 / float64(p.TotalGroups)
}

// Task 是一个异步翻译任务. Store 返回的是快照, 修改快照不会影响存储.
type Task struct {
	ID          string     `json:"task_id"`
	Status      Status     `json:"status"`
	Request     Request    `json:"request"`
	Result      *Outcome   `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Progress    Progress   `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the task is in a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Duration returns the task duration (or time since start if still running)
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	if t.CompletedAt != nil {
		return t.CompletedAt.Sub(*t.StartedAt)
	}
	return time.Since(*t.StartedAt)
}

// StatusView 是状态查询的返回
type StatusView struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) view() StatusView {
	return StatusView{
		TaskID:    t.ID,
		Status:    t.Status,
		Error:     t.Error,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// snapshot 深拷贝可变字段
func (t *Task) snapshot() Task {
	cp := *t
	cp.Request.Terminology = maps.Clone(t.Request.Terminology)
	if t.Result != nil {
		r := *t.Result
		cp.Result = &r
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		cp.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return cp
}
