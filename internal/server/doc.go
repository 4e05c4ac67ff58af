/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供
    Start/Run/Shutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时。

# 主要能力

  - Start 在后台 goroutine 中运行服务；Run 阻塞直到 context 结束
    或服务异常退出，随后执行优雅关闭。
  - Errors() 返回异步错误通道。
  - Addr 在启动后返回实际监听地址，便于测试使用 ":0"。

API 服务与指标服务分别使用独立的 Manager 实例。
*/
package server
