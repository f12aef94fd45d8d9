package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// U2I2I 先用用户向量在 ANN 中取少量种子，再按共现扩展。
// 扩展物品得分 = Σ related.score * seed.score，跳过历史物品与种子本身。
type U2I2I struct {
	Embeddings core.EmbeddingStore
	Index      core.AnnIndex
	CoOccur    core.CoOccurIndex
	// SeedLimit 种子数，<=0 时取 3
	SeedLimit int
	// PerSeedLimit 每个种子扩展的物品数，<=0 时取 10
	PerSeedLimit int
}

func (r *U2I2I) ID() core.StrategyID { return core.StrategyU2I2I }

func (r *U2I2I) Applicable(ctx context.Context, uctx *core.UserContext) bool {
	return r.Index != nil && r.CoOccur != nil && hasUserVector(ctx, r.Embeddings, uctx)
}

func (r *U2I2I) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	vec, ok, err := r.Embeddings.UserVector(ctx, uctx.UserID)
	if err != nil || !ok || len(vec) == 0 {
		return nil, err
	}
	seedLimit := r.SeedLimit
	if seedLimit <= 0 {
		seedLimit = 3
	}
	perSeed := r.PerSeedLimit
	if perSeed <= 0 {
		perSeed = 10
	}

	seeds, err := r.Index.Query(ctx, vec, seedLimit, uctx.Attributes())
	if err != nil {
		return nil, err
	}
	board := newScoreboard()
	for _, seed := range seeds {
		related, err := r.CoOccur.TopRelated(ctx, seed.ID, perSeed)
		if err != nil {
			return nil, err
		}
		for _, it := range related {
			if it.ID <= 0 || it.ID == seed.ID || uctx.SeenItem(it.ID) {
				continue
			}
			board.add(it.ID, it.Score*seed.Score, it.Metadata)
		}
	}
	return board.top(quota, r.ID()), nil
}
