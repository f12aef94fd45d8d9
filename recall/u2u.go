package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// U2U 是相似用户召回：找到相似用户，按相似度加权聚合他们的代表物品。
// 物品得分 = Σ item.score * neighbor.similarity，已交互过的物品被跳过。
type U2U struct {
	Finder core.UserNeighborFinder
	// NeighborLimit 相似用户数，<=0 时取 50
	NeighborLimit int
}

func (r *U2U) ID() core.StrategyID { return core.StrategyU2U }

func (r *U2U) Applicable(_ context.Context, uctx *core.UserContext) bool {
	return r.Finder != nil && uctx != nil
}

func (r *U2U) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	limit := r.NeighborLimit
	if limit <= 0 {
		limit = 50
	}
	neighbors, err := r.Finder.TopNeighbors(ctx, uctx.UserID, limit)
	if err != nil {
		return nil, err
	}
	board := newScoreboard()
	for _, nb := range neighbors {
		for _, it := range nb.TopItems {
			if it.ID <= 0 || uctx.SeenItem(it.ID) {
				continue
			}
			board.add(it.ID, it.Score*nb.Similarity, it.Metadata)
		}
	}
	return board.top(quota, r.ID()), nil
}
