// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于文档分块与分组的 Token 预算管理。
// ForModel 对未知模型与离线环境都会回退，不会返回错误。
package tokenizer
