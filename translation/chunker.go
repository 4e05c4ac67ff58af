package translation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/doctranslate/llm/tokenizer"
	"github.com/BaSui01/doctranslate/types"

	"go.uber.org/zap"
)

// 第一轮分隔符, 按优先级排列: 标题 > 段落 > 换行 > 句末标点
var primarySeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
	"\n\n", "\n",
	"。", ".", "？", "?", "！", "!",
}

// 二次切分只使用段落/换行/句末标点
var fineSeparators = []string{
	"\n\n", "\n",
	"。", ".", "？", "?", "！", "!",
}

// 没有任何分隔符时, 按 limit*lengthFactor 个字符定长切分
const lengthFactor = 3

// Chunker 将文档切分为不超过 token 上限的分块
type Chunker struct {
	limit     int
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器
func NewChunker(limit int, tok tokenizer.Tokenizer, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit < 1 {
		limit = 1
	}
	return &Chunker{
		limit:     limit,
		tokenizer: tok,
		logger:    logger.With(zap.String("stage", "chunk")),
	}
}

// Limit 返回单个分块的 token 上限
func (c *Chunker) Limit() int { return c.limit }

// Chunk 切分文档. 返回的分块 ID 连续且按文档顺序排列.
// 只有 tokenizer 出错时才返回错误.
func (c *Chunker) Chunk(document string) ([]Chunk, error) {
	total, err := c.count(document)
	if err != nil {
		return nil, err
	}

	c.logger.Info("document chunking started",
		zap.Int("content_length", len(document)),
		zap.Int("total_tokens", total),
		zap.Int("max_chunk_tokens", c.limit))

	if total <= c.limit {
		c.logger.Info("document fits in a single chunk", zap.Int("total_tokens", total))
		return []Chunk{{ID: 0, Content: document, TokenCount: total, Kind: ChunkComplete}}, nil
	}

	segments, used := splitFirst(document, primarySeparators)
	if segments == nil {
		segments = splitByLength(document, c.limit*lengthFactor)
		used = "length_based"
	}

	if len(segments) == 0 {
		// 纯空白文档: 与空文档一致, 原样作为单个完整分块
		c.logger.Warn("document is whitespace only, keeping it as a single chunk",
			zap.Int("total_tokens", total))
		return []Chunk{{ID: 0, Content: document, TokenCount: total, Kind: ChunkComplete}}, nil
	}

	c.logger.Debug("initial split completed",
		zap.String("separator", strconv.Quote(used)),
		zap.Int("segments", len(segments)))

	chunks := make([]Chunk, 0, len(segments))
	oversized := 0
	for _, seg := range segments {
		n, err := c.count(seg)
		if err != nil {
			return nil, err
		}
		if n <= c.limit {
			chunks = append(chunks, Chunk{ID: len(chunks), Content: seg, TokenCount: n, Kind: ChunkPrimary})
			continue
		}

		oversized++
		subs, err := c.splitLarge(seg)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			sub.ID = len(chunks)
			sub.Kind = ChunkSubSplit
			chunks = append(chunks, sub)
		}
	}

	maxTokens := 0
	for _, ch := range chunks {
		maxTokens = max(maxTokens, ch.TokenCount)
	}
	c.logger.Info("document chunking completed",
		zap.String("separator", strconv.Quote(used)),
		zap.Int("chunks", len(chunks)),
		zap.Int("oversized_segments", oversized),
		zap.Int("max_chunk_tokens", maxTokens))

	return chunks, nil
}

// splitLarge 用细粒度分隔符二次切分超限段落, 仍超限的部分按 token 强制切分.
func (c *Chunker) splitLarge(text string) ([]Chunk, error) {
	for _, sep := range fineSeparators {
		if !strings.Contains(text, sep) {
			continue
		}
		var out []Chunk
		for _, part := range splitOn(text, sep) {
			n, err := c.count(part)
			if err != nil {
				return nil, err
			}
			if n <= c.limit {
				out = append(out, Chunk{Content: part, TokenCount: n})
				continue
			}
			forced, err := c.forceSplit(part)
			if err != nil {
				return nil, err
			}
			out = append(out, forced...)
		}
		if len(out) > 1 {
			return out, nil
		}
	}
	return c.forceSplit(text)
}

// forceSplit 按 token 边界切分, 每段不超过上限且不会截断多字节字符.
func (c *Chunker) forceSplit(text string) ([]Chunk, error) {
	ids, err := c.tokenizer.Encode(text)
	if err != nil {
		return nil, chunkError("encode", err)
	}

	var out []Chunk
	for pos := 0; pos < len(ids); {
		piece, used, tokens, err := c.decodeWindow(ids[pos:])
		if err != nil {
			return nil, err
		}
		pos += used
		if strings.TrimSpace(piece) == "" {
			continue
		}
		out = append(out, Chunk{Content: piece, TokenCount: tokens})
	}
	return out, nil
}

// decodeWindow 从 ids 开头取出一段合法文本, 返回文本、消耗的 id 数与其 token 数.
func (c *Chunker) decodeWindow(ids []int) (string, int, int, error) {
	for limit := min(c.limit, len(ids)); limit > 0; {
		piece, used, err := tokenizer.DecodePrefix(c.tokenizer, ids, limit)
		if err != nil {
			return "", 0, 0, chunkError("decode", err)
		}
		if used == 0 {
			break
		}
		n, err := c.count(piece)
		if err != nil {
			return "", 0, 0, err
		}
		if n <= c.limit {
			return piece, used, n, nil
		}
		limit = used - 1
	}

	// 单个字符跨越的 token 数超过上限时, 取最短的合法前缀
	for used := 1; used <= len(ids); used++ {
		piece, err := c.tokenizer.Decode(ids[:used])
		if err != nil {
			return "", 0, 0, chunkError("decode", err)
		}
		if utf8.ValidString(piece) || used == len(ids) {
			n, err := c.count(piece)
			if err != nil {
				return "", 0, 0, err
			}
			c.logger.Warn("forced split exceeded chunk limit",
				zap.Int("tokens", n),
				zap.Int("limit", c.limit))
			return piece, used, n, nil
		}
	}
	return "", len(ids), 0, nil
}

func (c *Chunker) count(text string) (int, error) {
	n, err := c.tokenizer.CountTokens(text)
	if err != nil {
		return 0, chunkError("count tokens", err)
	}
	return n, nil
}

func chunkError(op string, err error) error {
	return types.NewError(types.ErrChunkConstruction, fmt.Sprintf("tokenizer %s failed", op)).WithCause(err)
}

// splitFirst 使用第一个出现在文本中的分隔符切分. 没有匹配时返回 nil.
func splitFirst(text string, separators []string) ([]string, string) {
	for _, sep := range separators {
		if strings.Contains(text, sep) {
			return splitOn(text, sep), sep
		}
	}
	return nil, ""
}

// splitOn 切分并去除空白段.
// 标题分隔符会补回到后续段落开头; 句末标点保留在前一段末尾; 空白分隔符直接丢弃.
func splitOn(text, sep string) []string {
	var raw []string
	switch {
	case isHeadingSeparator(sep):
		parts := strings.Split(text, sep)
		raw = append(raw, parts[0])
		for _, p := range parts[1:] {
			raw = append(raw, sep+p)
		}
	case strings.TrimSpace(sep) == "":
		raw = strings.Split(text, sep)
	default:
		raw = strings.SplitAfter(text, sep)
	}

	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isHeadingSeparator(sep string) bool {
	return strings.HasPrefix(sep, "\n#")
}

// splitByLength 按字符数定长切分, 丢弃纯空白片段
func splitByLength(text string, size int) []string {
	if size < 1 {
		size = 1
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
	}
	return out
}
