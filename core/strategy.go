package core

import (
	"sort"
	"strings"
)

// StrategyID 标识一个召回通道（策略）。每个候选有且仅有一个来源通道。
type StrategyID string

const (
	StrategyU2U       StrategyID = "u2u"        // 相似用户的物品
	StrategyU2I       StrategyID = "u2i"        // 用户向量 ANN
	StrategyI2I       StrategyID = "i2i"        // 最近交互物品的共现扩展
	StrategyU2I2I     StrategyID = "u2i2i"      // ANN 种子 + 共现扩展
	StrategyU2A2I     StrategyID = "u2a2i"      // 偏好属性倒排
	StrategyLatest    StrategyID = "latest"     // 最新
	StrategyHot       StrategyID = "hot"        // 热门
	StrategyRandomI2I StrategyID = "random_i2i" // 随机种子 + 共现扩展
	StrategyMix       StrategyID = "mix"        // 混合兜底

	// 检索链路（query 驱动）
	StrategyBM25   StrategyID = "bm25"
	StrategyVector StrategyID = "vector"
)

type strategyMeta struct {
	weight      float64
	description string
}

// strategyTable 是通道默认权重与描述的数据表，进程内只读。
// 声明顺序即 interleave 时的通道顺序。
var (
	strategyOrder = []StrategyID{
		StrategyU2U,
		StrategyU2I,
		StrategyI2I,
		StrategyU2I2I,
		StrategyU2A2I,
		StrategyLatest,
		StrategyHot,
		StrategyRandomI2I,
		StrategyMix,
		StrategyBM25,
		StrategyVector,
	}
	strategyTable = map[StrategyID]strategyMeta{
		StrategyU2U:       {0.7, "user to user: items consumed by similar users"},
		StrategyU2I:       {0.7, "user to item: nearest items to the user embedding"},
		StrategyI2I:       {0.5, "item to item: co-occurrence of recently consumed items"},
		StrategyU2I2I:     {0.7, "user to item to item: ANN seeds expanded by co-occurrence"},
		StrategyU2A2I:     {1.0, "user to attribute to item: preferred attributes via inverted index"},
		StrategyLatest:    {0.1, "latest published items"},
		StrategyHot:       {0.1, "popular items"},
		StrategyRandomI2I: {0.3, "random seed expanded by co-occurrence"},
		StrategyMix:       {0.1, "mixed fallback"},
		StrategyBM25:      {0.6, "lexical retrieval"},
		StrategyVector:    {0.4, "vector retrieval"},
	}
	strategyRank = func() map[StrategyID]int {
		m := make(map[StrategyID]int, len(strategyOrder))
		for i, id := range strategyOrder {
			m[id] = i
		}
		return m
	}()
)

// DefaultWeight 返回通道的默认融合权重；未知通道为 1.0。
func (s StrategyID) DefaultWeight() float64 {
	if m, ok := strategyTable[s]; ok {
		return m.weight
	}
	return 1.0
}

func (s StrategyID) Description() string {
	return strategyTable[s].description
}

// Known 表示是否为内置通道。
func (s StrategyID) Known() bool {
	_, ok := strategyTable[s]
	return ok
}

// Order 返回通道的声明序号，未知通道排在所有内置通道之后。
func (s StrategyID) Order() int {
	if r, ok := strategyRank[s]; ok {
		return r
	}
	return len(strategyOrder)
}

func (s StrategyID) String() string { return string(s) }

// ParseStrategyID 解析通道标识，大小写不敏感。
func ParseStrategyID(v string) (StrategyID, bool) {
	id := StrategyID(strings.ToLower(strings.TrimSpace(v)))
	if !id.Known() {
		return "", false
	}
	return id, true
}

// AllStrategies 按声明顺序返回全部内置通道。
func AllStrategies() []StrategyID {
	out := make([]StrategyID, len(strategyOrder))
	copy(out, strategyOrder)
	return out
}

// SortStrategies 按声明顺序原地排序，未知通道按名字排在最后。
func SortStrategies(ids []StrategyID) {
	sort.SliceStable(ids, func(i, j int) bool {
		oi, oj := ids[i].Order(), ids[j].Order()
		if oi != oj {
			return oi < oj
		}
		return ids[i] < ids[j]
	})
}
