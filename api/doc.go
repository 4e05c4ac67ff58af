// Package api 定义翻译服务 HTTP API 的请求与响应类型.
//
// # API Overview
//
// 翻译以异步任务的形式提供:
//   - POST /api/v1/translation/start        提交文档, 返回 202 与任务 ID
//   - GET  /api/v1/translation/status/{id}  查询状态与分组进度
//   - GET  /api/v1/translation/result/{id}  获取译文, 未完成时返回 202
//   - GET  /api/v1/translation/progress/{id} WebSocket 进度推送
//
// 健康检查位于 /health, /healthz, /ready, /readyz 与 /version.
//
// # Authentication
//
// 配置了 API Key 时, 业务端点需要携带 X-API-Key 头:
//
//	X-API-Key: your-api-key
//
// 配置了 JWT 密钥时也可以使用 Bearer token (HS256).
//
// # Base URL
//
//	http://localhost:8080
//
// # Generating Documentation
//
//	swag init -g cmd/doctranslate/main.go -o api --parseDependency --parseInternal
package api
