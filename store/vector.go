package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/conv"
)

// 相似度度量
const (
	MetricCosine       = "cosine"
	MetricEuclidean    = "euclidean"
	MetricInnerProduct = "inner_product"
)

// MemoryVectorIndex 是内存向量索引，用于测试/开发/小规模部署。
// 同时实现 core.AnnIndex（物品向量检索）与 core.EmbeddingStore（用户/物品向量）。
// 线程安全，暴力检索。
type MemoryVectorIndex struct {
	// Metric 为空时使用余弦相似度
	Metric string

	mu       sync.RWMutex
	items    map[int64][]float32
	metadata map[int64]map[string]any
	users    map[int64][]float32
}

func NewMemoryVectorIndex(metric string) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		Metric:   metric,
		items:    make(map[int64][]float32),
		metadata: make(map[int64]map[string]any),
		users:    make(map[int64][]float32),
	}
}

// UpsertItem 写入物品向量与元数据。metadata 用于 Query 的等值过滤。
func (m *MemoryVectorIndex) UpsertItem(itemID int64, vec []float32, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemID] = append([]float32(nil), vec...)
	if metadata != nil {
		m.metadata[itemID] = metadata
	}
}

func (m *MemoryVectorIndex) UpsertUser(userID int64, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = append([]float32(nil), vec...)
}

func (m *MemoryVectorIndex) DeleteItem(itemID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
	delete(m.metadata, itemID)
}

func (m *MemoryVectorIndex) UserVector(_ context.Context, userID int64) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.users[userID]
	return v, ok, nil
}

func (m *MemoryVectorIndex) ItemVector(_ context.Context, itemID int64) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[itemID]
	return v, ok, nil
}

// Query 返回与 vector 最相似的 k 个物品。filters 只对物品元数据中存在的 key 做等值过滤。
func (m *MemoryVectorIndex) Query(_ context.Context, vector []float32, k int, filters map[string]any) ([]core.ScoredID, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	out := make([]core.ScoredID, 0, len(m.items))
	for id, vec := range m.items {
		meta := m.metadata[id]
		if !matchFilter(filters, meta) {
			continue
		}
		out = append(out, core.ScoredID{ID: id, Score: similarity(m.Metric, vector, vec), Metadata: meta})
	}
	m.mu.RUnlock()
	return topScored(out, k), nil
}

// NearestUsers 返回与 userID 最相似的 k 个用户（不含自己）。
func (m *MemoryVectorIndex) NearestUsers(_ context.Context, userID int64, k int) ([]core.ScoredID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	self, ok := m.users[userID]
	if !ok || k <= 0 {
		return nil, nil
	}
	out := make([]core.ScoredID, 0, len(m.users))
	for id, vec := range m.users {
		if id == userID {
			continue
		}
		out = append(out, core.ScoredID{ID: id, Score: similarity(m.Metric, self, vec)})
	}
	return topScored(out, k), nil
}

// matchFilter 只比较元数据里存在的 key（按字符串形式），上下文中与物品无关的属性不影响结果。
// feed_ids 过滤要求物品的 feed_id 在列表中。
func matchFilter(filters, meta map[string]any) bool {
	for key, want := range filters {
		if key == core.FilterFeedIDs {
			if feeds, ok := want.([]int64); ok && !inFeeds(meta[core.AttrFeedID], feeds) {
				return false
			}
			continue
		}
		got, ok := meta[key]
		if ok && fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func inFeeds(v any, feeds []int64) bool {
	id, ok := conv.ToInt64(v)
	if !ok {
		return false
	}
	return slices.Contains(feeds, id)
}

func topScored(items []core.ScoredID, k int) []core.ScoredID {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > k {
		items = items[:k]
	}
	return items
}

func similarity(metric string, a, b []float32) float64 {
	switch metric {
	case MetricEuclidean:
		// 距离越小分数越高
		return 1.0 / (1.0 + euclideanDistance(a, b))
	case MetricInnerProduct:
		return innerProduct(a, b)
	default:
		return CosineSimilarity(a, b)
	}
}

// CosineSimilarity 计算余弦相似度，维度不一致或零向量时为 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func innerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

var (
	_ core.AnnIndex       = (*MemoryVectorIndex)(nil)
	_ core.EmbeddingStore = (*MemoryVectorIndex)(nil)
)
