/*
包 llm 提供统一的大语言模型接入层: Provider 抽象与通用的请求/响应模型.

具体的服务商适配位于 llm/providers 子包, Token 计数位于 llm/tokenizer.
翻译流水线只依赖 [Provider] 接口, 因此可以在测试中替换为桩实现.
*/
package llm
