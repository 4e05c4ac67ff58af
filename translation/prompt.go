package translation

import (
	"strings"
)

const systemPromptTemplate = `You are a professional document translator. Translate the user's content into {{language}}.

## Rules
1. Proper nouns: keep names of people, places and organizations in the original language and add the {{language}} translation in parentheses, e.g. "Einstein (爱因斯坦)".
2. Mathematics: write every formula in LaTeX and use English terminology inside math expressions.
3. Formatting: the input is Markdown. Keep the same structure, including headings, lists, tables, code blocks and line breaks.
4. Style: produce fluent, idiomatic {{language}} and keep the original tone.
5. Output only the translation, with no explanations or notes.`

// BuildSystemPrompt 生成翻译系统提示词. 术语表为空时不输出术语部分.
func BuildSystemPrompt(targetLanguage string, terms Terminology) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(systemPromptTemplate, "{{language}}", targetLanguage))

	if section := terminologySection(terms); section != "" {
		b.WriteString("\n\n")
		b.WriteString(section)
	}
	return b.String()
}

// terminologySection 每个术语一行 "- term: translation"
func terminologySection(terms Terminology) string {
	if len(terms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Terminology\nUse these translations consistently:\n")
	for i, term := range terms.Terms() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(term)
		b.WriteString(": ")
		b.WriteString(terms[term])
	}
	return b.String()
}
