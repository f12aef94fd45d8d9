package store

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// UserSimilarity 返回与某用户最相似的用户及相似度。MemoryVectorIndex 与 pgstore.Store 都实现了它。
type UserSimilarity interface {
	NearestUsers(ctx context.Context, userID int64, k int) ([]core.ScoredID, error)
}

// EmbeddingNeighborFinder 用用户向量相似度找邻居，邻居的代表物品取其最近交互，
// 物品分为交互权重（<=0 视为 1），U2U 再乘以相似度。
type EmbeddingNeighborFinder struct {
	Users    UserSimilarity
	Sequence core.SequenceStore
	// ItemsPerNeighbor 每个邻居取的交互数，<=0 时取 20
	ItemsPerNeighbor int
}

func (f *EmbeddingNeighborFinder) TopNeighbors(ctx context.Context, userID int64, k int) ([]core.UserNeighbor, error) {
	similar, err := f.Users.NearestUsers(ctx, userID, k)
	if err != nil {
		return nil, err
	}
	per := f.ItemsPerNeighbor
	if per <= 0 {
		per = 20
	}
	out := make([]core.UserNeighbor, 0, len(similar))
	for _, s := range similar {
		if s.Score <= 0 {
			continue
		}
		seq, err := f.Sequence.RecentInteractions(ctx, s.ID, per)
		if err != nil {
			return nil, err
		}
		items := make([]core.ScoredID, 0, len(seq))
		for _, it := range seq {
			w := it.Weight
			if w <= 0 {
				w = 1
			}
			items = append(items, core.ScoredID{ID: it.ItemID, Score: w})
		}
		out = append(out, core.UserNeighbor{UserID: s.ID, Similarity: s.Score, TopItems: items})
	}
	return out, nil
}

var _ core.UserNeighborFinder = (*EmbeddingNeighborFinder)(nil)
