package translation

import (
	"go.uber.org/zap"
)

// GrouperConfig 分组参数
type GrouperConfig struct {
	MaxGroupSize    int     `json:"max_group_size" yaml:"max_group_size"`
	MinGroupSize    int     `json:"min_group_size" yaml:"min_group_size"`
	ModelMaxTokens  int     `json:"model_max_tokens" yaml:"model_max_tokens"`
	GroupTokenRatio float64 `json:"group_token_ratio" yaml:"group_token_ratio"`
}

// Grouper 将有序分块贪心打包为受 token 与数量双重约束的分组
type Grouper struct {
	maxSize   int
	maxTokens int
	logger    *zap.Logger
}

// NewGrouper 创建分组器. MaxGroupSize 不会小于 MinGroupSize(至少为 1).
func NewGrouper(cfg GrouperConfig, logger *zap.Logger) *Grouper {
	if logger == nil {
		logger = zap.NewNop()
	}
	minSize := max(cfg.MinGroupSize, 1)
	return &Grouper{
		maxSize:   max(cfg.MaxGroupSize, minSize),
		maxTokens: int(float64(cfg.ModelMaxTokens) * cfg.GroupTokenRatio),
		logger:    logger.With(zap.String("stage", "group")),
	}
}

// MaxGroupSize 返回每组最多的分块数
func (g *Grouper) MaxGroupSize() int { return g.maxSize }

// MaxGroupTokens 返回每组 token 上限 floor(ModelMaxTokens × GroupTokenRatio)
func (g *Grouper) MaxGroupTokens() int { return g.maxTokens }

// Group 按顺序打包. 每个分块恰好出现在一个分组中; 单个超限分块独占一组.
func (g *Grouper) Group(chunks []Chunk) []ChunkGroup {
	var groups []ChunkGroup
	var current []Chunk
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		if len(current) == 1 && currentTokens > g.maxTokens {
			g.logger.Warn("chunk exceeds group token budget, using singleton group",
				zap.Int("chunk_id", current[0].ID),
				zap.Int("tokens", currentTokens),
				zap.Int("max_group_tokens", g.maxTokens))
		}
		groups = append(groups, ChunkGroup{
			Index:      len(groups),
			Chunks:     current,
			TokenTotal: currentTokens,
		})
		current = nil
		currentTokens = 0
	}

	for _, ch := range chunks {
		if len(current) < g.maxSize && currentTokens+ch.TokenCount <= g.maxTokens {
			current = append(current, ch)
			currentTokens += ch.TokenCount
			continue
		}
		flush()
		current = []Chunk{ch}
		currentTokens = ch.TokenCount
	}
	flush()

	sizes := make([]int, len(groups))
	for i, grp := range groups {
		sizes[i] = grp.Size()
	}
	g.logger.Info("chunk grouping completed",
		zap.Int("chunks", len(chunks)),
		zap.Int("groups", len(groups)),
		zap.Ints("group_sizes", sizes),
		zap.Int("max_group_tokens", g.maxTokens))

	return groups
}
