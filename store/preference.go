package store

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rushteam/recallkit/core"
)

// PreferenceStore 用哈希 <prefix>pref:<uid> 存用户属性偏好，field 为 "key=value"，值为分数。
type PreferenceStore struct {
	KV     core.KeyValueStore
	Prefix string
}

func (p *PreferenceStore) key(userID int64) string {
	return prefixOr(p.Prefix) + "pref:" + itoa(userID)
}

func (p *PreferenceStore) TopAttributes(ctx context.Context, userID int64, limit int) ([]core.AttributePreference, error) {
	fields, err := p.KV.HGetAll(ctx, p.key(userID))
	if err != nil {
		return nil, err
	}
	prefs := make([]core.AttributePreference, 0, len(fields))
	for field, raw := range fields {
		k, v, ok := strings.Cut(field, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		score, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			continue
		}
		prefs = append(prefs, core.AttributePreference{Key: k, Value: v, Score: score})
	}
	sort.Slice(prefs, func(i, j int) bool {
		if prefs[i].Score != prefs[j].Score {
			return prefs[i].Score > prefs[j].Score
		}
		if prefs[i].Key != prefs[j].Key {
			return prefs[i].Key < prefs[j].Key
		}
		return prefs[i].Value < prefs[j].Value
	})
	if limit > 0 && len(prefs) > limit {
		prefs = prefs[:limit]
	}
	return prefs, nil
}

func (p *PreferenceStore) Put(ctx context.Context, userID int64, pref core.AttributePreference) error {
	return p.KV.HSet(ctx, p.key(userID), pref.Key+"="+pref.Value,
		[]byte(strconv.FormatFloat(pref.Score, 'f', -1, 64)))
}

// InvertedIndex 用有序集合 <prefix>inv:<key>:<value> 存属性值下的物品。
// 查询时物品得分 = Σ pref.Score * member.score。
type InvertedIndex struct {
	KV     core.KeyValueStore
	Prefix string
	// PerAttribute 每个属性值读取的物品数，<=0 时取 k
	PerAttribute int
}

func (x *InvertedIndex) key(attrKey, attrValue string) string {
	return prefixOr(x.Prefix) + "inv:" + attrKey + ":" + attrValue
}

func (x *InvertedIndex) Query(ctx context.Context, prefs []core.AttributePreference, k int) ([]core.ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	per := x.PerAttribute
	if per <= 0 {
		per = k
	}
	total := make(map[int64]float64)
	for _, pref := range prefs {
		members, err := x.KV.ZRangeWithScores(ctx, x.key(pref.Key, pref.Value), 0, int64(per)-1)
		if err != nil {
			return nil, err
		}
		for _, it := range parseMembers(members) {
			total[it.ID] += pref.Score * it.Score
		}
	}
	out := make([]core.ScoredID, 0, len(total))
	for id, s := range total {
		out = append(out, core.ScoredID{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (x *InvertedIndex) Add(ctx context.Context, attrKey, attrValue string, itemID int64, score float64) error {
	return x.KV.ZAdd(ctx, x.key(attrKey, attrValue), score, itoa(itemID))
}

var (
	_ core.UserPreferenceService = (*PreferenceStore)(nil)
	_ core.InvertedIndex         = (*InvertedIndex)(nil)
)
