package filter

import (
	"context"
	"strconv"
	"time"

	"github.com/rushteam/recallkit/core"
)

// DefaultKeyPrefix 是 StoreAdapter 的默认 key 前缀。
const DefaultKeyPrefix = "recall:"

// StoreAdapter 将 core.KeyValueStore 适配为过滤器所需的存储接口。
//
// key 布局（有序集合，成员为物品/feed ID）：
//   - {Prefix}exposed:{userID}  score 为曝光时间（Unix 秒）
//   - {Prefix}block:{userID}    用户屏蔽的 feed
//   - 黑名单 key 由 BlacklistFilter.Key 直接给出
type StoreAdapter struct {
	KV     core.KeyValueStore
	Prefix string
}

// NewStoreAdapter 创建一个 KeyValueStore 适配器。
func NewStoreAdapter(kv core.KeyValueStore, prefix string) *StoreAdapter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &StoreAdapter{KV: kv, Prefix: prefix}
}

func (a *StoreAdapter) key(kind string, userID int64) string {
	p := a.Prefix
	if p == "" {
		p = DefaultKeyPrefix
	}
	return p + kind + ":" + strconv.FormatInt(userID, 10)
}

// Blacklist 读取黑名单集合。
func (a *StoreAdapter) Blacklist(ctx context.Context, key string) (map[int64]struct{}, error) {
	members, err := a.KV.ZRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	return memberSet(members, 0), nil
}

// UserBlocks 读取用户屏蔽的 feed 集合。
func (a *StoreAdapter) UserBlocks(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	members, err := a.KV.ZRangeWithScores(ctx, a.key("block", userID), 0, -1)
	if err != nil {
		return nil, err
	}
	return memberSet(members, 0), nil
}

// ExposedItems 读取 since 之后曝光过的物品；since 为零值时返回全部。
func (a *StoreAdapter) ExposedItems(ctx context.Context, userID int64, since time.Time) (map[int64]struct{}, error) {
	members, err := a.KV.ZRangeWithScores(ctx, a.key("exposed", userID), 0, -1)
	if err != nil {
		return nil, err
	}
	var cutoff float64
	if !since.IsZero() {
		cutoff = float64(since.Unix())
	}
	return memberSet(members, cutoff), nil
}

// MarkExposed 记录一批物品在 at 时刻曝光给用户。
func (a *StoreAdapter) MarkExposed(ctx context.Context, userID int64, itemIDs []int64, at time.Time) error {
	key := a.key("exposed", userID)
	score := float64(at.Unix())
	for _, id := range itemIDs {
		if err := a.KV.ZAdd(ctx, key, score, strconv.FormatInt(id, 10)); err != nil {
			return err
		}
	}
	return nil
}

// BlockFeed 记录用户屏蔽某个 feed。
func (a *StoreAdapter) BlockFeed(ctx context.Context, userID, feedID int64, at time.Time) error {
	return a.KV.ZAdd(ctx, a.key("block", userID), float64(at.Unix()), strconv.FormatInt(feedID, 10))
}

// memberSet 解析成员 ID，分数低于 minScore 的成员被跳过。
func memberSet(members []core.ZMember, minScore float64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if m.Score < minScore {
			continue
		}
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}
