// Package store 提供 core.Store / core.KeyValueStore 的实现（MemoryStore / RedisStore），
// 以及基于 KeyValueStore 的召回数据适配器：
//
//   - ListIndex: 最新/热门/随机榜单（有序集合）
//   - CoOccurIndex: 物品共现表（每个物品一个有序集合）
//   - SequenceStore: 用户交互序列（JSON）
//   - PreferenceStore / InvertedIndex: 用户属性偏好与属性倒排（哈希 + 有序集合）
//   - MemoryVectorIndex: 内存向量索引，实现 AnnIndex 与 EmbeddingStore
//
// 示例：
//
//	kv := NewMemoryStore()
//	lists := &ListIndex{KV: kv}
//	hot := recall.NewHot(lists)
package store

import (
	"strconv"

	"github.com/rushteam/recallkit/core"
)

// DefaultKeyPrefix 是所有 key 的默认前缀。
const DefaultKeyPrefix = "recall:"

func prefixOr(p string) string {
	if p == "" {
		return DefaultKeyPrefix
	}
	return p
}

// parseMembers 把有序集合成员解析为 ScoredID，无法解析的成员被跳过。
func parseMembers(members []core.ZMember) []core.ScoredID {
	out := make([]core.ScoredID, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, core.ScoredID{ID: id, Score: m.Score})
	}
	return out
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
