package tokenizer

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultEncoding 是未知模型回退使用的编码.
const DefaultEncoding = "cl100k_base"

// Tokenizer是统一的代号计数界面.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)

	// Decode 将 token ID 转换回文本.
	Decode(tokens []int) (string, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是一个轻量级消息结构, 由 tokenizer 包使用
// 以避免与 llm 包的循环依赖。
type Message struct {
	Role    string
	Content string
	Name    string
}

// 消息开销常量.
const (
	perMessageOverhead = 4
	perNameOverhead    = 1
	replyPriming       = 2
)

// ForModel 返回给定模型的分词器, 不会失败.
// 未知模型使用 cl100k_base; 编码数据无法加载时回退到估算器.
func ForModel(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := NewTiktokenTokenizer(model)
	if err := t.init(); err != nil {
		logger.Warn("tiktoken encoding unavailable, falling back to estimator",
			zap.String("model", model),
			zap.String("encoding", t.encoding),
			zap.Error(err))
		return NewEstimatorTokenizer(model, 0)
	}
	if !t.known {
		logger.Debug("unknown model encoding, using default",
			zap.String("model", model),
			zap.String("encoding", t.encoding))
	}
	return t
}

// Truncate 返回 text 的前缀, 其 token 数不超过 maxTokens.
// 截断点总是落在完整字符上.
func Truncate(t Tokenizer, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	ids, err := t.Encode(text)
	if err != nil {
		return "", err
	}
	if len(ids) <= maxTokens {
		return text, nil
	}
	// 重新编码可能与原切分不同, 逐步收缩直到复核通过.
	for limit := maxTokens; limit > 0; {
		prefix, n, err := DecodePrefix(t, ids, limit)
		if err != nil || n == 0 {
			return prefix, err
		}
		count, err := t.CountTokens(prefix)
		if err != nil {
			return "", err
		}
		if count <= maxTokens {
			return prefix, nil
		}
		limit = n - 1
	}
	return "", nil
}

// DecodePrefix 解码 ids 中不超过 maxTokens 个 token 的最长合法前缀,
// 返回文本及实际使用的 token 数. 没有合法前缀时返回 0.
func DecodePrefix(t Tokenizer, ids []int, maxTokens int) (string, int, error) {
	if maxTokens > len(ids) {
		maxTokens = len(ids)
	}
	for n := maxTokens; n > 0; n-- {
		s, err := t.Decode(ids[:n])
		if err != nil {
			return "", 0, err
		}
		if utf8.ValidString(s) {
			return s, n, nil
		}
	}
	return "", 0, nil
}

// WithinLimit 判断 text 是否在 maxTokens 以内.
func WithinLimit(t Tokenizer, text string, maxTokens int) (bool, error) {
	n, err := t.CountTokens(text)
	if err != nil {
		return false, err
	}
	return n <= maxTokens, nil
}
