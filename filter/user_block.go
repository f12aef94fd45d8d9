package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/conv"
)

// UserBlockStore 是用户屏蔽存储接口。
type UserBlockStore interface {
	// UserBlocks 获取用户屏蔽的 feed ID
	UserBlocks(ctx context.Context, userID int64) (map[int64]struct{}, error)
}

// UserBlockFilter 过滤掉 feed_id 属性在用户屏蔽列表中的候选。没有 feed_id 的候选保留。
type UserBlockFilter struct {
	Store UserBlockStore
}

// NewUserBlockFilter 创建一个用户屏蔽过滤器。
func NewUserBlockFilter(store UserBlockStore) *UserBlockFilter {
	return &UserBlockFilter{Store: store}
}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

// ShouldFilter 未经 Prepare 时不过滤。
func (f *UserBlockFilter) ShouldFilter(context.Context, *core.UserContext, core.Candidate) (bool, error) {
	return false, nil
}

func (f *UserBlockFilter) Prepare(ctx context.Context, uctx *core.UserContext) (Filter, error) {
	blocked := map[int64]struct{}{}
	if f.Store != nil && uctx != nil {
		var err error
		if blocked, err = f.Store.UserBlocks(ctx, uctx.UserID); err != nil {
			return nil, err
		}
	}
	return &feedBlockFilter{name: f.Name(), feeds: blocked}, nil
}

type feedBlockFilter struct {
	name  string
	feeds map[int64]struct{}
}

func (f *feedBlockFilter) Name() string { return f.name }

func (f *feedBlockFilter) ShouldFilter(_ context.Context, _ *core.UserContext, c core.Candidate) (bool, error) {
	v, ok := c.Attributes[core.AttrFeedID]
	if !ok {
		return false, nil
	}
	feedID, ok := conv.ToInt64(v)
	if !ok {
		return false, nil
	}
	_, hit := f.feeds[feedID]
	return hit, nil
}
