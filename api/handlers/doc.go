/*
Package handlers 提供翻译服务 HTTP API 的请求处理器实现。

# 核心类型

  - TranslationHandler — 翻译任务的提交、状态、结果与 WebSocket 进度
  - HealthHandler      — 存活与就绪检查（/health, /ready, /version），LLM 为关键依赖，Redis 为可选依赖
  - Response           — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo          — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter     — 包装 http.ResponseWriter，记录状态码并透传 Hijack

# 主要能力

  - 统一响应格式：WriteSuccess / WriteData / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（MaxBodyBytes 限制 + 严格模式）、ValidateContentType
  - types.ErrorCode 到 HTTP 状态码的映射由 types.HTTPStatusOf 完成
  - 结果未就绪时返回 202 与 Retry-After，已失败的任务返回 409
  - 可扩展健康检查：RegisterCheck 注册 HealthCheck，NewCheckFunc 包装探测函数
*/
package handlers
