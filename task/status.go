package task

// Status 是翻译任务的生命周期状态
type Status string

const (
	// StatusPending 已创建, 等待执行
	StatusPending Status = "pending"
	// StatusRunning 流水线执行中
	StatusRunning Status = "running"
	// StatusCompleted 已完成, 携带翻译结果
	StatusCompleted Status = "completed"
	// StatusFailed 已失败, 携带错误信息
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status is a terminal state
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions 列出每个状态允许的下一状态
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
