package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// Mix 是兜底通道：依次调用内部通道，同一物品取最高分，统一标记为 mix 来源。
// 常用组合是 Latest + Hot，在个性化通道都不可用（新用户）时保证有结果。
type Mix struct {
	Sources []Source
}

func (r *Mix) ID() core.StrategyID { return core.StrategyMix }

func (r *Mix) Applicable(ctx context.Context, uctx *core.UserContext) bool {
	for _, s := range r.Sources {
		if s.Applicable(ctx, uctx) {
			return true
		}
	}
	return false
}

func (r *Mix) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	best := make(map[int64]core.ScoredID)
	var order []int64
	var lastErr error
	for _, s := range r.Sources {
		if !s.Applicable(ctx, uctx) {
			continue
		}
		items, err := s.Recall(ctx, uctx, quota)
		if err != nil {
			lastErr = err
			continue
		}
		for _, c := range items {
			old, ok := best[c.ItemID]
			if !ok {
				order = append(order, c.ItemID)
			}
			if !ok || c.Score > old.Score {
				best[c.ItemID] = core.ScoredID{ID: c.ItemID, Score: c.Score, Metadata: c.Attributes}
			}
		}
	}
	if len(order) == 0 {
		return nil, lastErr
	}
	board := newScoreboard()
	for _, id := range order {
		it := best[id]
		board.add(it.ID, it.Score, it.Metadata)
	}
	return board.top(quota, r.ID()), nil
}
