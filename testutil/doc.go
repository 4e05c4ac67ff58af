/*
Package testutil 提供 doctranslate 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertContains
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足

# 子包

  - testutil/mocks: MockBackend（翻译后端）与 MockProvider（LLM Provider），
    均支持 Builder 模式与错误注入
  - testutil/fixtures: 样例文档与定长段落生成器

# 使用示例

	ctx := testutil.TestContext(t)
	backend := mocks.NewMockBackend().WithFailOn("beta", errTimeout)
	out, err := engine.Translate(ctx, fixtures.MarkdownDocument, "中文", nil, nil)
*/
package testutil
