/*
Package translation 实现长文档翻译流水线: 分块、分组、有界并行调度与有序重组。

# 流程

	文档 -> Chunker -> []Chunk -> Grouper -> []ChunkGroup
	     -> Dispatcher (组间并行, 组内串行) -> []Result -> Assemble -> Output

# 核心类型

  - Chunk / ChunkGroup / Result: 流水线各阶段的数据记录
  - Chunker: 按分隔符优先级递归切分, 超限段落按 token 强制切分
  - Grouper: 在数量与 token 两个上限内贪心打包
  - Dispatcher: 固定宽度 worker 池, 单块失败只终止本组剩余分块
  - Engine: 串联以上阶段并记录 span 与指标

# 后端

Backend 是一次阻塞的 (系统提示词, 原文) -> 译文 调用。ProviderBackend
适配 llm.Provider, CachedBackend 以 Redis 缓存成功的翻译。
*/
package translation
