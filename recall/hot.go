package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// Listed 是基于 ItemLister 的简单列表召回（最新/热门）。
// - Latest: ItemLister 的 LATEST 列表
// - Hot: ItemLister 的 HOT 列表
// 列表为空时回退到 Fallback（内存中的固定 ID，分数按位置递减）。
type Listed struct {
	Strategy core.StrategyID
	Kind     core.ListKind
	Lister   core.ItemLister
	Fallback []int64
}

// NewLatest 创建最新召回。
func NewLatest(lister core.ItemLister) *Listed {
	return &Listed{Strategy: core.StrategyLatest, Kind: core.ListLatest, Lister: lister}
}

// NewHot 创建热门召回。
func NewHot(lister core.ItemLister, fallback ...int64) *Listed {
	return &Listed{Strategy: core.StrategyHot, Kind: core.ListHot, Lister: lister, Fallback: fallback}
}

func (r *Listed) ID() core.StrategyID { return r.Strategy }

func (r *Listed) Applicable(_ context.Context, uctx *core.UserContext) bool {
	return uctx != nil && (r.Lister != nil || len(r.Fallback) > 0)
}

func (r *Listed) Recall(ctx context.Context, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	var items []core.ScoredID
	if r.Lister != nil {
		var err error
		items, err = r.Lister.List(ctx, uctx, r.Kind, quota)
		if err != nil && len(r.Fallback) == 0 {
			return nil, err
		}
	}
	if len(items) == 0 {
		n := len(r.Fallback)
		items = make([]core.ScoredID, 0, n)
		for i, id := range r.Fallback {
			items = append(items, core.ScoredID{ID: id, Score: float64(n - i)})
		}
	}
	return promote(items, quota, r.Strategy), nil
}
