/*
包 cache 提供基于 Redis 的缓存管理能力，用于缓存分块翻译结果。

Manager 封装 go-redis 客户端，负责连接生命周期（初始化 Ping、后台健康
检查、优雅关闭），提供 Get/Set/Delete 与 GetJSON/SetJSON 操作。
Key 将若干部分哈希为带前缀的定长键。未命中时返回 ErrCacheMiss。
*/
package cache
