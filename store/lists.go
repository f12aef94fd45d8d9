package store

import (
	"context"
	"math/rand/v2"

	"github.com/rushteam/recallkit/core"
)

// ListIndex 是基于有序集合的 ItemLister：
//   - latest: <prefix>list:latest，score 为发布时间戳
//   - hot:    <prefix>list:hot，score 为热度
//   - random: 从 <prefix>list:pool 中随机截取一段连续窗口
type ListIndex struct {
	KV     core.KeyValueStore
	Prefix string
	// Offset 返回随机窗口起点，为空时使用 rand.Int64N；测试时可固定
	Offset func(n int64) int64
}

func (l *ListIndex) key(kind core.ListKind) string {
	name := string(kind)
	if kind == core.ListRandom {
		name = "pool"
	}
	return prefixOr(l.Prefix) + "list:" + name
}

func (l *ListIndex) List(ctx context.Context, _ *core.UserContext, kind core.ListKind, k int) ([]core.ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	key := l.key(kind)
	var start int64
	if kind == core.ListRandom {
		n, err := l.KV.ZCard(ctx, key)
		if err != nil {
			return nil, err
		}
		if span := n - int64(k); span > 0 {
			offset := l.Offset
			if offset == nil {
				offset = rand.Int64N
			}
			start = offset(span + 1)
		}
	}
	members, err := l.KV.ZRangeWithScores(ctx, key, start, start+int64(k)-1)
	if err != nil {
		return nil, err
	}
	return parseMembers(members), nil
}

// Push 写入榜单。
func (l *ListIndex) Push(ctx context.Context, kind core.ListKind, itemID int64, score float64) error {
	return l.KV.ZAdd(ctx, l.key(kind), score, itoa(itemID))
}

var _ core.ItemLister = (*ListIndex)(nil)
