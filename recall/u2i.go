package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// U2I 是用户向量召回：用用户 embedding 在 ANN 索引中取最近的物品。
// 用户没有向量时不参与召回。上下文属性作为 ANN 过滤条件透传。
type U2I struct {
	Embeddings core.EmbeddingStore
	Index      core.AnnIndex
}

func (r *U2I) ID() core.StrategyID { return core.StrategyU2I }

func (r *U2I) Applicable(ctx context.Context, uctx *core.UserContext) bool {
	return hasUserVector(ctx, r.Embeddings, uctx) && r.Index != nil
}

func (r *U2I) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	vec, ok, err := r.Embeddings.UserVector(ctx, uctx.UserID)
	if err != nil || !ok || len(vec) == 0 {
		return nil, err
	}
	items, err := r.Index.Query(ctx, vec, quota, uctx.Attributes())
	if err != nil {
		return nil, err
	}
	return promote(items, quota, r.ID()), nil
}

func hasUserVector(ctx context.Context, store core.EmbeddingStore, uctx *core.UserContext) bool {
	if store == nil || uctx == nil {
		return false
	}
	vec, ok, err := store.UserVector(ctx, uctx.UserID)
	return err == nil && ok && len(vec) > 0
}
