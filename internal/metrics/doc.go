/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、后端调用、
翻译流水线、任务生命周期与缓存五个维度。

Collector 使用 promauto 自动注册，所有指标按 namespace 隔离。
HTTP 状态码归类为 2xx/3xx/4xx/5xx；Token 只统计成功翻译的分块。
*/
package metrics
