/*
Package types 提供 doctranslate 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包。这里定义统一的错误码与
结构化错误（Error / ErrorCode），供 llm、translation、task、api 等
上层模块共用，并通过 HTTPStatusOf 将错误映射为 HTTP 状态码。
*/
package types
