package translation

import "sort"

// ChunkKind 标记分块来源
type ChunkKind string

const (
	// ChunkComplete 文档未超限, 整篇作为一个分块
	ChunkComplete ChunkKind = "complete"
	// ChunkPrimary 第一轮分隔符切分的结果
	ChunkPrimary ChunkKind = "primary"
	// ChunkSubSplit 超限段落二次切分的结果
	ChunkSubSplit ChunkKind = "sub_split"
)

// Chunk 是一次后端调用翻译的最小文本单元. 创建后不可变.
// ID 在一次切分中从 0 开始连续递增, 是重组顺序的唯一依据.
type Chunk struct {
	ID         int       `json:"chunk_id"`
	Content    string    `json:"content"`
	TokenCount int       `json:"tokens"`
	Kind       ChunkKind `json:"type"`
}

// ChunkGroup 是一组 ID 连续的分块, 由同一个 worker 顺序处理.
type ChunkGroup struct {
	Index      int     `json:"group_index"`
	Chunks     []Chunk `json:"chunks"`
	TokenTotal int     `json:"token_total"`
}

// Size 返回组内分块数
func (g ChunkGroup) Size() int { return len(g.Chunks) }

// Result 是单个分块的翻译结果, 每个分块恰好一个.
type Result struct {
	ChunkID           int    `json:"chunk_id"`
	OriginalContent   string `json:"original_content"`
	TranslatedContent string `json:"translated_content"`
	InputTokens       int    `json:"input_tokens"`
	OutputTokens      int    `json:"output_tokens"`
	Succeeded         bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	ElapsedMs         int64  `json:"elapsed_ms"`
}

// Usage 汇总 token 用量
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add 累加另一份用量
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Terminology 是调用方提供的 术语 -> 译文 对照表
type Terminology map[string]string

// Terms 返回按术语排序的条目, 保证提示词确定
func (t Terminology) Terms() []string {
	terms := make([]string, 0, len(t))
	for k := range t {
		terms = append(terms, k)
	}
	sort.Strings(terms)
	return terms
}

// Output 是重组后的完整翻译
type Output struct {
	Text    string   `json:"translated_content"`
	Usage   Usage    `json:"usage"`
	Results []Result `json:"-"`
}

// Succeeded 返回成功分块数
func (o *Output) Succeeded() int {
	n := 0
	for _, r := range o.Results {
		if r.Succeeded {
			n++
		}
	}
	return n
}

// Failed 返回失败分块数
func (o *Output) Failed() int {
	return len(o.Results) - o.Succeeded()
}
