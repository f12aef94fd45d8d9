package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// U2A2I 是属性偏好召回：读取用户最偏好的属性值（作者、feed、分类等），再查倒排索引。
type U2A2I struct {
	Preferences core.UserPreferenceService
	Index       core.InvertedIndex
	// AttributeLimit 读取的偏好数，<=0 时取 10
	AttributeLimit int
}

func (r *U2A2I) ID() core.StrategyID { return core.StrategyU2A2I }

func (r *U2A2I) limit() int {
	if r.AttributeLimit <= 0 {
		return 10
	}
	return r.AttributeLimit
}

// Applicable 要求偏好列表非空。
func (r *U2A2I) Applicable(ctx context.Context, uctx *core.UserContext) bool {
	if r.Preferences == nil || r.Index == nil || uctx == nil {
		return false
	}
	prefs, err := r.Preferences.TopAttributes(ctx, uctx.UserID, r.limit())
	return err == nil && len(prefs) > 0
}

func (r *U2A2I) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	prefs, err := r.Preferences.TopAttributes(ctx, uctx.UserID, r.limit())
	if err != nil || len(prefs) == 0 {
		return nil, err
	}
	hits, err := r.Index.Query(ctx, prefs, quota)
	if err != nil {
		return nil, err
	}
	return promote(hits, quota, r.ID()), nil
}
