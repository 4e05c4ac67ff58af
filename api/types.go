package api

import (
	"time"
)

// =============================================================================
// 翻译任务类型
// =============================================================================

// TranslationRequest 提交翻译任务的请求体
// @Description 翻译请求
type TranslationRequest struct {
	// 待翻译的文档内容 (Markdown 或纯文本)
	Content string `json:"content" validate:"required" example:"# 标题\n\n正文"`
	// 目标语言, 为空时使用服务默认语言
	TargetLanguage string `json:"target_language,omitempty" validate:"omitempty,max=64" example:"English"`
	// 术语对照表: 原文术语 -> 指定译文
	Terminology map[string]string `json:"terminology,omitempty" validate:"omitempty,max=500,dive,keys,required,max=200,endkeys,max=200"`
}

// TaskCreationResponse 任务创建响应
// @Description 任务已受理
type TaskCreationResponse struct {
	TaskID      string `json:"task_id" example:"7f0c2f9e-6a4e-4a55-9d61-2f0b3f1d8a10"`
	Status      string `json:"status" example:"pending"`
	StatusURL   string `json:"status_url"`
	ResultURL   string `json:"result_url"`
	ProgressURL string `json:"progress_url"`
	// 粗略的处理耗时估计 (秒)
	EstimatedSeconds int `json:"estimated_seconds"`
}

// ProgressInfo 以分组为单位的进度
type ProgressInfo struct {
	CompletedGroups int     `json:"completed_groups"`
	TotalGroups     int     `json:"total_groups"`
	Percent         float64 `json:"percent"`
}

// TaskStatusResponse 任务状态
// @Description 任务状态
type TaskStatusResponse struct {
	TaskID    string       `json:"task_id"`
	Status    string       `json:"status" example:"running"`
	Error     string       `json:"error,omitempty"`
	Progress  ProgressInfo `json:"progress"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// UsageInfo token 用量
type UsageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TranslationResponse 已完成任务的翻译结果
// @Description 翻译结果
type TranslationResponse struct {
	TaskID            string    `json:"task_id"`
	Status            string    `json:"status" example:"completed"`
	TranslatedContent string    `json:"translated_content"`
	OriginalContent   string    `json:"original_content"`
	TargetLanguage    string    `json:"target_language"`
	Usage             UsageInfo `json:"usage"`
	TotalChunks       int       `json:"total_chunks"`
	FailedChunks      int       `json:"failed_chunks"`
}

// ProgressEvent WebSocket 推送的进度事件
// @Description 进度事件
type ProgressEvent struct {
	TaskID          string  `json:"task_id"`
	Status          string  `json:"status"`
	CompletedGroups int     `json:"completed_groups"`
	TotalGroups     int     `json:"total_groups"`
	Percent         float64 `json:"percent"`
	Error           string  `json:"error,omitempty"`
}
