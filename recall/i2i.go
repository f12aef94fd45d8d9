package recall

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/recallkit/core"
)

// I2I 以最近交互的物品为种子做共现扩展。
//   - 种子按时间倒序取前 SeedLimit 个
//   - 第 i 个种子的权重 = weight * exp(-i / SeedLimit)，weight <= 0 视为 1
//   - 扩展物品得分 = Σ related.score * seedWeight，跳过历史物品
//
// 上下文里没有交互时，从 Sequence 读取。
type I2I struct {
	Sequence core.SequenceStore
	CoOccur  core.CoOccurIndex
	// SeedLimit 种子数，<=0 时取 3
	SeedLimit int
	// PerSeedLimit 每个种子扩展的物品数，<=0 时取 20
	PerSeedLimit int
}

func (r *I2I) ID() core.StrategyID { return core.StrategyI2I }

func (r *I2I) Applicable(_ context.Context, uctx *core.UserContext) bool {
	if r.CoOccur == nil || uctx == nil {
		return false
	}
	return uctx.HasInteractions() || r.Sequence != nil
}

func (r *I2I) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	seedLimit := r.SeedLimit
	if seedLimit <= 0 {
		seedLimit = 3
	}
	perSeed := r.PerSeedLimit
	if perSeed <= 0 {
		perSeed = 20
	}

	interactions := uctx.Interactions()
	if len(interactions) == 0 && r.Sequence != nil {
		var err error
		interactions, err = r.Sequence.RecentInteractions(ctx, uctx.UserID, seedLimit)
		if err != nil {
			return nil, err
		}
	}
	if len(interactions) == 0 {
		return nil, nil
	}

	sort.SliceStable(interactions, func(i, j int) bool {
		return interactions[i].Timestamp.After(interactions[j].Timestamp)
	})
	if len(interactions) > seedLimit {
		interactions = interactions[:seedLimit]
	}

	board := newScoreboard()
	for i, seed := range interactions {
		base := seed.Weight
		if base <= 0 {
			base = 1.0
		}
		seedWeight := base * math.Exp(-float64(i)/float64(seedLimit))
		related, err := r.CoOccur.TopRelated(ctx, seed.ItemID, perSeed)
		if err != nil {
			return nil, err
		}
		for _, it := range related {
			if it.ID <= 0 || uctx.SeenItem(it.ID) {
				continue
			}
			board.add(it.ID, it.Score*seedWeight, it.Metadata)
		}
	}
	return board.top(quota, r.ID()), nil
}
