package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// BlacklistStore 是黑名单存储接口。
type BlacklistStore interface {
	Blacklist(ctx context.Context, key string) (map[int64]struct{}, error)
}

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品。
type BlacklistFilter struct {
	// ItemIDs 是内存中的黑名单物品 ID
	ItemIDs []int64

	// Store 用于从存储中读取黑名单（可选）
	Store BlacklistStore

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []int64, store BlacklistStore, key string) *BlacklistFilter {
	return &BlacklistFilter{ItemIDs: itemIDs, Store: store, Key: key}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(_ context.Context, _ *core.UserContext, c core.Candidate) (bool, error) {
	for _, id := range f.ItemIDs {
		if c.ItemID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *BlacklistFilter) Prepare(ctx context.Context, _ *core.UserContext) (Filter, error) {
	ids := make(map[int64]struct{}, len(f.ItemIDs))
	for _, id := range f.ItemIDs {
		ids[id] = struct{}{}
	}
	if f.Store != nil && f.Key != "" {
		stored, err := f.Store.Blacklist(ctx, f.Key)
		if err != nil {
			return nil, err
		}
		for id := range stored {
			ids[id] = struct{}{}
		}
	}
	return &idSetFilter{name: f.Name(), ids: ids}, nil
}
