package fusion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/conv"
	"github.com/rushteam/recallkit/pkg/utils"
)

// LabelFusionMode 记录候选经过的合并方式。
const LabelFusionMode = "fusion_mode"

// Fuser 把各通道的原始结果融合成一个有序列表。
//
// 步骤：
//  1. 每个通道内 min-max 归一化（可选 Mapping 再映射），再乘以通道权重
//  2. 按 ItemID 合并：ModeAdditive 求和，ModeMax 取最大；元数据取首次出现者
//     （通道按声明顺序、通道内按分数降序遍历）
//  3. 对合并后的每个候选做一次新鲜度混合
//  4. Deduplicate 时按归一化标题折叠，保留首次出现者
//  5. Interleave 时按通道轮流输出；否则分数降序、同分 ItemID 升序
//  6. 多样性约束
//  7. 截断到 TopK（TopK <= 0 时不截断）
//
// Fuser 无状态，可并发使用。
type Fuser struct {
	Freshness Freshness
	// Provider 为缺少 published_at 属性的候选补充发布时间，可为空
	Provider core.FreshnessProvider
	// Mapping 为空时不做分段映射
	Mapping ScoreMapping
	Logger  *zap.Logger
}

// NewFuser 使用默认新鲜度参数创建 Fuser。
func NewFuser(provider core.FreshnessProvider, logger *zap.Logger) *Fuser {
	return &Fuser{Freshness: DefaultFreshness(), Provider: provider, Logger: logger}
}

func (f *Fuser) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Fuse 执行融合。now 是新鲜度的参考时间。
func (f *Fuser) Fuse(
	ctx context.Context,
	channelResults map[core.StrategyID][]core.Candidate,
	cfg core.FusionConfig,
	now time.Time,
) []core.Candidate {
	merged := f.merge(channelResults, cfg)
	if len(merged) == 0 {
		return nil
	}
	merged = f.applyFreshness(ctx, merged, now)

	if cfg.Deduplicate {
		merged = DedupByTitle(merged)
	}

	var ordered []core.Candidate
	if cfg.Interleave {
		ordered = Interleave(merged, 0)
	} else {
		ordered = merged
		SortByScore(ordered)
	}

	if cfg.Diversity.Enabled() {
		ordered = Diversify(ordered, cfg.Diversity, cfg.TopK)
		if !cfg.Interleave {
			SortByScore(ordered)
		}
	}

	if cfg.TopK > 0 && len(ordered) > cfg.TopK {
		ordered = ordered[:cfg.TopK]
	}
	return ordered
}

func (f *Fuser) merge(channelResults map[core.StrategyID][]core.Candidate, cfg core.FusionConfig) []core.Candidate {
	channels := make([]core.StrategyID, 0, len(channelResults))
	total := 0
	for id, list := range channelResults {
		channels = append(channels, id)
		total += len(list)
	}
	core.SortStrategies(channels)

	index := make(map[int64]int, total)
	merged := make([]core.Candidate, 0, total)
	for _, id := range channels {
		weight := cfg.WeightOf(id)
		normalized := MinMax(channelResults[id])
		SortByScore(normalized)
		for _, c := range normalized {
			c.Score = f.Mapping.Map(c.Score) * weight
			pos, seen := index[c.ItemID]
			if !seen {
				c.PutLabel(core.LabelRecallSource, utils.Label{Value: string(id), Source: "fusion"})
				c.PutLabel(LabelFusionMode, utils.Label{Value: cfg.Mode.String(), Source: "fusion"})
				index[c.ItemID] = len(merged)
				merged = append(merged, c)
				continue
			}
			first := &merged[pos]
			switch cfg.Mode {
			case core.ModeMax:
				if c.Score > first.Score {
					first.Score = c.Score
				}
			default:
				first.Score += c.Score
			}
			first.PutLabel(core.LabelRecallSource, utils.Label{Value: string(id), Source: "fusion"})
		}
	}
	return merged
}

// applyFreshness 对每个合并后的候选做一次新鲜度混合。
func (f *Fuser) applyFreshness(ctx context.Context, cands []core.Candidate, now time.Time) []core.Candidate {
	fr := f.Freshness.Normalized()
	if fr.Weight <= 0 {
		return cands
	}
	if now.IsZero() {
		now = time.Now()
	}

	published := make(map[int64]time.Time, len(cands))
	var missing []int64
	for _, c := range cands {
		if t, ok := conv.ToTime(c.Attributes[core.AttrPublishedAt]); ok {
			published[c.ItemID] = t
			continue
		}
		missing = append(missing, c.ItemID)
	}
	if len(missing) > 0 && f.Provider != nil {
		times, err := f.Provider.PublishedAt(ctx, missing)
		if err != nil {
			f.logger().Warn("freshness provider failed, treating publish time as unknown",
				zap.Error(err), zap.Int("items", len(missing)))
		}
		for id, t := range times {
			published[id] = t
		}
	}

	for i := range cands {
		cands[i].Score = fr.Apply(cands[i].Score, published[cands[i].ItemID], now)
	}
	return cands
}

// DedupByTitle 折叠归一化标题相同的候选，保留首次出现者的元数据，分数取两者较大值。
// 没有标题的候选不参与折叠。
func DedupByTitle(cands []core.Candidate) []core.Candidate {
	seen := make(map[string]int, len(cands))
	out := make([]core.Candidate, 0, len(cands))
	for _, c := range cands {
		title := core.NormalizeTitle(c.Title())
		if title == "" {
			out = append(out, c)
			continue
		}
		if pos, ok := seen[title]; ok {
			if c.Score > out[pos].Score {
				out[pos].Score = c.Score
			}
			continue
		}
		seen[title] = len(out)
		out = append(out, c)
	}
	return out
}
