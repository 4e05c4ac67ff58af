/*
# 概述

包 openai 提供 OpenAI 兼容服务的 Provider 适配实现，底层使用
github.com/sashabaranov/go-openai 客户端。任何暴露 /v1/chat/completions
的服务（OpenAI、vLLM、Qwen、DeepSeek 等）都可以通过 BaseURL 接入。

# 支持能力

  - Chat Completions 同步调用
  - 可选的 x/time/rate 本地限流（RequestsPerSecond / Burst）
  - 上游错误映射为 types.Error（状态码、可重试性）
  - 基于 ListModels 的健康检查
*/
package openai
