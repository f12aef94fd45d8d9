package recall

import (
	"context"
	"sort"

	"github.com/rushteam/recallkit/core"
)

// Source 表示一个召回通道（U2U/U2I/I2I/...）。
// 你可以把它理解为“可并发 fan-out 的策略单元”：
//   - Applicable 判断通道所需的输入是否存在（向量、偏好列表等），不满足时不参与本次召回
//   - Recall 最多返回 quota 个候选；没有数据时返回空切片与 nil error
//   - 只负责把协作方的原生结果转成 core.Candidate，不做归一化或加权
type Source interface {
	ID() core.StrategyID
	Applicable(ctx context.Context, uctx *core.UserContext) bool
	Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error)
}

// scoreboard 累加同一物品在多个种子/邻居下的得分。
type scoreboard struct {
	scores map[int64]float64
	meta   map[int64]map[string]any
}

func newScoreboard() *scoreboard {
	return &scoreboard{
		scores: make(map[int64]float64),
		meta:   make(map[int64]map[string]any),
	}
}

func (b *scoreboard) add(id int64, score float64, meta map[string]any) {
	b.scores[id] += score
	if _, ok := b.meta[id]; !ok && len(meta) > 0 {
		b.meta[id] = meta
	}
}

func (b *scoreboard) len() int { return len(b.scores) }

// top 按分数降序（同分 ID 升序）取前 k 个。
func (b *scoreboard) top(k int, source core.StrategyID) []core.Candidate {
	ids := make([]int64, 0, len(b.scores))
	for id := range b.scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := b.scores[ids[i]], b.scores[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	if k > 0 && len(ids) > k {
		ids = ids[:k]
	}
	out := make([]core.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.ScoredID{ID: id, Score: b.scores[id], Metadata: b.meta[id]}.ToCandidate(source))
	}
	return out
}

// promote 把 ScoredID 列表转为候选，跳过非法 ID，最多 k 个。
func promote(items []core.ScoredID, k int, source core.StrategyID) []core.Candidate {
	out := make([]core.Candidate, 0, min(len(items), max(k, 0)))
	for _, it := range items {
		if k > 0 && len(out) >= k {
			break
		}
		if it.ID <= 0 {
			continue
		}
		out = append(out, it.ToCandidate(source))
	}
	return out
}
