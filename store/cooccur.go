package store

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// CoOccurIndex 把每个物品的相关物品存成一个有序集合 <prefix>cooccur:<id>。
type CoOccurIndex struct {
	KV     core.KeyValueStore
	Prefix string
}

func (c *CoOccurIndex) key(itemID int64) string {
	return prefixOr(c.Prefix) + "cooccur:" + itoa(itemID)
}

func (c *CoOccurIndex) TopRelated(ctx context.Context, itemID int64, k int) ([]core.ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	members, err := c.KV.ZRangeWithScores(ctx, c.key(itemID), 0, int64(k)-1)
	if err != nil {
		return nil, err
	}
	return parseMembers(members), nil
}

// Put 写入物品对的共现分；对称写入两个方向。
func (c *CoOccurIndex) Put(ctx context.Context, a, b int64, score float64) error {
	if err := c.KV.ZAdd(ctx, c.key(a), score, itoa(b)); err != nil {
		return err
	}
	return c.KV.ZAdd(ctx, c.key(b), score, itoa(a))
}

var _ core.CoOccurIndex = (*CoOccurIndex)(nil)
