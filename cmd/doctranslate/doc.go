/*
Package main 提供 DocTranslate 服务端程序入口。

# 概述

cmd/doctranslate 基于 cobra 提供 serve、translate、version 与 health 子命令。
serve 启动异步翻译 API 与指标端口；translate 在本地同步翻译单个文件。
配置来源依次为默认值、.env、YAML 文件与环境变量。

# 主要能力

  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    MetricsMiddleware、CORS、APIKeyAuth 或 JWTAuth、RateLimiter
  - 路由：chi，翻译端点挂载在 /api/v1/translation
  - Metrics：独立端口暴露 /metrics，未单独配置端口时挂在 API 端口
  - 优雅关闭：停止接收请求 → 等待进行中的任务 → 关闭 Metrics、Redis 与 OTel
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
