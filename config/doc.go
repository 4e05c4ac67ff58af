// Package config 提供 DocTranslate 的配置管理功能。
//
// 配置来源依次为默认值、.env 文件、YAML 文件和环境变量，
// 加载完成后使用 validate tag 统一校验。
// 同时兼容 OPENAI_API_KEY、DEFAULT_MODEL 等不带前缀的旧变量名。
package config
