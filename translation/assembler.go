package translation

import (
	"fmt"
	"slices"
	"strings"
)

// 分块之间的分隔
const blockSeparator = "\n\n"

// FailureBlock 渲染失败分块: 标记行 + 原文, 保证文档结构不会丢失.
func FailureBlock(errDetail, original string) string {
	return fmt.Sprintf("【翻译失败: %s】\n%s", errDetail, original)
}

// Assemble 按 ChunkID 升序重组结果. 失败分块输出 FailureBlock 且不计入用量.
// 不修改入参; 相同输入总是得到相同输出.
func Assemble(results []Result) Output {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b Result) int { return a.ChunkID - b.ChunkID })

	parts := make([]string, len(sorted))
	var usage Usage
	for i, r := range sorted {
		if r.Succeeded {
			parts[i] = r.TranslatedContent
			usage = usage.Add(Usage{InputTokens: r.InputTokens, OutputTokens: r.OutputTokens})
			continue
		}
		parts[i] = FailureBlock(r.Error, r.OriginalContent)
	}

	return Output{
		Text:    strings.Join(parts, blockSeparator),
		Usage:   usage,
		Results: sorted,
	}
}
