// Package fixtures 提供翻译测试使用的样例文档。
package fixtures

import "strings"

// MarkdownDocument 包含多级标题、段落与公式的样例
const MarkdownDocument = `# Introduction

Large language models translate text one request at a time. Long documents must be split first.

## Method

We split the document on headings, then paragraphs, then sentences. Each piece is sized in tokens.

The energy is $E = mc^2$ and remains unchanged.

## Results

Translation quality depends on the model. Parallel groups reduce latency.`

// ChineseDocument 以中文句号分句, 不含换行
const ChineseDocument = "大型语言模型一次只能处理有限的上下文。长文档需要先切分。切分后的片段按顺序分组。每组由一个工作协程顺序翻译。最后按原始顺序重组。"

// Paragraph 生成恰好 n 个 ASCII 字符、以句点结尾的段落
func Paragraph(n int) string {
	if n <= 0 {
		return ""
	}
	const words = "lorem ipsum "
	s := strings.Repeat(words, n/len(words)+1)[:n-1]
	return s + "."
}

// Paragraphs 用空行连接多个段落
func Paragraphs(sizes ...int) string {
	parts := make([]string, len(sizes))
	for i, n := range sizes {
		parts[i] = Paragraph(n)
	}
	return strings.Join(parts, "\n\n")
}
