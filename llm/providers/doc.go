// Package providers 提供各 LLM 服务商适配器共享的配置与错误映射.
package providers
