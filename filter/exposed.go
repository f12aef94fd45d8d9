package filter

import (
	"context"
	"time"

	"github.com/rushteam/recallkit/core"
)

// ExposedStore 是曝光历史存储接口。
type ExposedStore interface {
	// ExposedItems 获取用户在 since 之后已曝光的物品 ID
	ExposedItems(ctx context.Context, userID int64, since time.Time) (map[int64]struct{}, error)
}

// ExposedFilter 是已曝光过滤器，过滤掉用户近期交互过或已经曝光过的物品。
// 数据源：
//  1. UserContext 中的近期交互
//  2. Store 中 Window 时间窗口内的曝光记录（可选）
type ExposedFilter struct {
	Store ExposedStore
	// Window 曝光时间窗口，<=0 表示不限
	Window time.Duration
}

// NewExposedFilter 创建一个已曝光过滤器，store 可为空。
func NewExposedFilter(store ExposedStore, window time.Duration) *ExposedFilter {
	return &ExposedFilter{Store: store, Window: window}
}

func (f *ExposedFilter) Name() string {
	return "filter.exposed"
}

func (f *ExposedFilter) ShouldFilter(_ context.Context, uctx *core.UserContext, c core.Candidate) (bool, error) {
	return uctx != nil && uctx.SeenItem(c.ItemID), nil
}

// Prepare 合并近期交互与存储中的曝光记录。
func (f *ExposedFilter) Prepare(ctx context.Context, uctx *core.UserContext) (Filter, error) {
	ids := make(map[int64]struct{})
	if uctx == nil {
		return &idSetFilter{name: f.Name(), ids: ids}, nil
	}
	for id := range uctx.RecentItemIDs() {
		ids[id] = struct{}{}
	}
	if f.Store != nil {
		var since time.Time
		if f.Window > 0 {
			since = uctx.RequestTime.Add(-f.Window)
		}
		exposed, err := f.Store.ExposedItems(ctx, uctx.UserID, since)
		if err != nil {
			return nil, err
		}
		for id := range exposed {
			ids[id] = struct{}{}
		}
	}
	return &idSetFilter{name: f.Name(), ids: ids}, nil
}
