package recall

import (
	"context"
	"math/rand/v2"

	"github.com/rushteam/recallkit/core"
)

// RandomI2I 从随机列表中挑一个种子，返回它的共现物品。用于探索。
type RandomI2I struct {
	Lister  core.ItemLister
	CoOccur core.CoOccurIndex
	// Pick 选择种子下标，为空时随机；测试时可固定
	Pick func(n int) int
}

func (r *RandomI2I) ID() core.StrategyID { return core.StrategyRandomI2I }

func (r *RandomI2I) Applicable(_ context.Context, uctx *core.UserContext) bool {
	return r.Lister != nil && r.CoOccur != nil && uctx != nil
}

func (r *RandomI2I) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	seeds, err := r.Lister.List(ctx, uctx, core.ListRandom, quota)
	if err != nil || len(seeds) == 0 {
		return nil, err
	}
	pick := r.Pick
	if pick == nil {
		pick = rand.IntN
	}
	seed := seeds[pick(len(seeds))]
	related, err := r.CoOccur.TopRelated(ctx, seed.ID, quota)
	if err != nil {
		return nil, err
	}
	out := make([]core.ScoredID, 0, len(related))
	for _, it := range related {
		if it.ID == seed.ID || uctx.SeenItem(it.ID) {
			continue
		}
		out = append(out, it)
	}
	return promote(out, quota, r.ID()), nil
}
