// Package task 把翻译流水线包装为异步任务.
//
// Store 是一个显式的状态机 (pending -> running -> completed | failed),
// 每种迁移只有一个入口, 每条记录独立加锁. Manager 负责提交、并发限制、
// 进度更新与可选的过期清理.
package task
