package translation

import (
	"errors"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/doctranslate/llm/tokenizer"
	"github.com/BaSui01/doctranslate/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestChunker(limit int) *Chunker {
	return NewChunker(limit, tokenizer.NewEstimatorTokenizer("test", 0), zap.NewNop())
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func joined(chunks []Chunk) string {
	var sb strings.Builder
	for _, ch := range chunks {
		sb.WriteString(ch.Content)
	}
	return sb.String()
}

func TestChunker_ShortDocumentIsComplete(t *testing.T) {
	c := newTestChunker(500)
	doc := "  Short document.\n\nSecond paragraph.  "

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc, chunks[0].Content)
	assert.Equal(t, ChunkComplete, chunks[0].Kind)
	assert.Equal(t, 0, chunks[0].ID)
}

func TestChunker_EmptyDocument(t *testing.T) {
	chunks, err := newTestChunker(10).Chunk("")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].TokenCount)
}

func TestChunker_HeadingsArePrefixed(t *testing.T) {
	// 每段约 15 token, 合计超过上限
	doc := strings.Join([]string{
		"Preface " + strings.Repeat("a", 50),
		"## First " + strings.Repeat("b", 50),
		"## Second " + strings.Repeat("c", 50),
	}, "\n")

	chunks, err := newTestChunker(20).Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.True(t, strings.HasPrefix(chunks[0].Content, "Preface"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "## First"))
	assert.True(t, strings.HasPrefix(chunks[2].Content, "## Second"))
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ID)
		assert.Equal(t, ChunkPrimary, ch.Kind)
	}
}

func TestChunker_SentenceTerminatorsStayWithSentence(t *testing.T) {
	doc := strings.Repeat("这是一个相当长的中文句子用于测试。", 4)

	chunks, err := newTestChunker(15).Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, ch := range chunks {
		assert.True(t, strings.HasSuffix(ch.Content, "。"), ch.Content)
	}
	assert.Equal(t, doc, joined(chunks))
}

func TestChunker_OversizedSegmentIsSubSplit(t *testing.T) {
	big := strings.Repeat("Sentence number one is here. ", 10)
	doc := "Intro line.\n\n" + big + "\n\nOutro line."

	chunks, err := newTestChunker(20).Chunk(doc)
	require.NoError(t, err)

	kinds := map[ChunkKind]int{}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ID)
		assert.LessOrEqual(t, ch.TokenCount, 20)
		kinds[ch.Kind]++
	}
	assert.Equal(t, 2, kinds[ChunkPrimary])
	assert.Greater(t, kinds[ChunkSubSplit], 1)
	assert.Equal(t, "Intro line.", chunks[0].Content)
	assert.Equal(t, "Outro line.", chunks[len(chunks)-1].Content)
}

func TestChunker_NoSeparatorFallsBackToLength(t *testing.T) {
	doc := strings.Repeat("x", 1000)

	chunks, err := newTestChunker(50).Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 50)
	}
	assert.Equal(t, doc, joined(chunks))
}

type failingTokenizer struct {
	tokenizer.Tokenizer
}

func (failingTokenizer) CountTokens(string) (int, error) {
	return 0, errors.New("encoding unavailable")
}

func TestChunker_TokenizerErrorIsConstructionFailure(t *testing.T) {
	c := NewChunker(10, failingTokenizer{}, nil)

	_, err := c.Chunk("anything")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrChunkConstruction))
}

func TestChunker_WhitespaceOnlyDocument(t *testing.T) {
	for _, doc := range []string{
		strings.Repeat("\n\n", 2000),
		strings.Repeat(" ", 6000),
		strings.Repeat("\t \n", 300),
	} {
		for _, limit := range []int{1, 3, 50} {
			chunks, err := newTestChunker(limit).Chunk(doc)
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, doc, chunks[0].Content)
			assert.Equal(t, ChunkComplete, chunks[0].Kind)
		}
	}
}

// byteTokenizer 每个字节一个 token, 多字节字符会被 Encode 拆成多个 id
type byteTokenizer struct{}

func (byteTokenizer) CountTokens(text string) (int, error) { return len(text), nil }

func (byteTokenizer) CountMessages(msgs []tokenizer.Message) (int, error) {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n, nil
}

func (byteTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

func (byteTokenizer) Decode(ids []int) (string, error) {
	b := make([]byte, len(ids))
	for i, id := range ids {
		b[i] = byte(id)
	}
	return string(b), nil
}

func (byteTokenizer) MaxTokens() int { return 1 << 20 }
func (byteTokenizer) Name() string   { return "bytes" }

func TestChunker_ForcedSplitKeepsRunesWhole(t *testing.T) {
	c := NewChunker(4, byteTokenizer{}, nil)

	chunks, err := c.Chunk("中文字")
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for i, want := range []string{"中", "文", "字"} {
		assert.Equal(t, want, chunks[i].Content)
		assert.Equal(t, 3, chunks[i].TokenCount)
		assert.Equal(t, ChunkSubSplit, chunks[i].Kind)
	}
}

func TestChunker_RuneWiderThanLimit(t *testing.T) {
	c := NewChunker(3, byteTokenizer{}, nil)

	chunks, err := c.Chunk("😀😀")
	require.NoError(t, err)

	// 单个 emoji 占 4 字节, 只能超限单独成块
	require.Len(t, chunks, 2)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ID)
		assert.Equal(t, "😀", ch.Content)
		assert.Equal(t, 4, ch.TokenCount)
	}
}

// checkChunks 校验分块不变量. 超限只允许出现在单字符分块或纯空白文档上.
func checkChunks(t *rapid.T, doc string, limit int, chunks []Chunk) {
	if len(chunks) == 0 {
		t.Fatalf("no chunks")
	}
	blank := strings.TrimSpace(doc) == ""
	for i, ch := range chunks {
		if ch.ID != i {
			t.Fatalf("chunk %d has id %d", i, ch.ID)
		}
		if !utf8.ValidString(ch.Content) {
			t.Fatalf("chunk %d is not valid UTF-8: %q", i, ch.Content)
		}
		if ch.TokenCount > limit && !blank && utf8.RuneCountInString(ch.Content) != 1 {
			t.Fatalf("chunk %d has %d tokens, limit %d: %q", i, ch.TokenCount, limit, ch.Content)
		}
	}
	if got, want := stripSpace(joined(chunks)), stripSpace(doc); got != want {
		t.Fatalf("content not preserved:\n got %q\nwant %q", got, want)
	}
}

func TestChunker_Properties(t *testing.T) {
	alphabet := []rune("abcdefg 中文字。.?！\n#")

	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 40).Draw(t, "limit")
		doc := rapid.StringOfN(rapid.SampledFrom(alphabet), 0, 600, -1).Draw(t, "doc")

		chunks, err := newTestChunker(limit).Chunk(doc)
		if err != nil {
			t.Fatalf("chunk: %v", err)
		}
		checkChunks(t, doc, limit, chunks)
	})
}

func TestChunker_ByteLevelProperties(t *testing.T) {
	alphabet := []rune("ab 中文字。.！\n😀🇨é")

	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 24).Draw(t, "limit")
		doc := rapid.StringOfN(rapid.SampledFrom(alphabet), 0, 300, -1).Draw(t, "doc")

		chunks, err := NewChunker(limit, byteTokenizer{}, nil).Chunk(doc)
		if err != nil {
			t.Fatalf("chunk: %v", err)
		}
		checkChunks(t, doc, limit, chunks)
	})
}
