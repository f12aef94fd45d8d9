package core

import (
	"context"
	"time"
)

// 以下是引擎依赖的只读协作方接口。实现位于 store（Redis/内存）、pgstore（Postgres/pgvector）、
// feast（特征服务）等基础设施包；引擎只依赖这些接口。

// FilterFeedIDs 是 AnnIndex.Query 的过滤 key，值为 []int64，只返回这些 feed 下的物品。
const FilterFeedIDs = "feed_ids"

// AnnIndex 向量近邻检索。filters 中与物品无关的 key 被忽略。
type AnnIndex interface {
	Query(ctx context.Context, vector []float32, k int, filters map[string]any) ([]ScoredID, error)
}

// CoOccurIndex 物品共现（相关物品）查询。
type CoOccurIndex interface {
	TopRelated(ctx context.Context, itemID int64, k int) ([]ScoredID, error)
}

// EmbeddingStore 用户/物品向量。ok=false 表示没有向量。
type EmbeddingStore interface {
	UserVector(ctx context.Context, userID int64) (vec []float32, ok bool, err error)
	ItemVector(ctx context.Context, itemID int64) (vec []float32, ok bool, err error)
}

// AttributePreference 是用户对某个属性值的偏好。
type AttributePreference struct {
	Key   string  `json:"key"`
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

// InvertedIndex 按属性偏好查物品。
type InvertedIndex interface {
	Query(ctx context.Context, prefs []AttributePreference, k int) ([]ScoredID, error)
}

// UserNeighbor 是一个相似用户及其代表物品。
type UserNeighbor struct {
	UserID     int64
	Similarity float64
	TopItems   []ScoredID
}

// UserNeighborFinder 查相似用户。
type UserNeighborFinder interface {
	TopNeighbors(ctx context.Context, userID int64, k int) ([]UserNeighbor, error)
}

// UserPreferenceService 查用户偏好属性。
type UserPreferenceService interface {
	TopAttributes(ctx context.Context, userID int64, limit int) ([]AttributePreference, error)
}

// SequenceStore 用户交互序列。
type SequenceStore interface {
	RecentInteractions(ctx context.Context, userID int64, limit int) ([]Interaction, error)
}

// ListKind 是简单列表的类型。
type ListKind string

const (
	ListLatest ListKind = "latest"
	ListRandom ListKind = "random"
	ListHot    ListKind = "hot"
)

// ItemLister 列出最新/随机/热门物品。
type ItemLister interface {
	List(ctx context.Context, uctx *UserContext, kind ListKind, k int) ([]ScoredID, error)
}

// FreshnessProvider 查询物品发布时间；查不到的物品不出现在结果中。
type FreshnessProvider interface {
	PublishedAt(ctx context.Context, ids []int64) (map[int64]time.Time, error)
}

// NoopFreshness 总是返回空结果。
type NoopFreshness struct{}

func (NoopFreshness) PublishedAt(context.Context, []int64) (map[int64]time.Time, error) {
	return map[int64]time.Time{}, nil
}

// QualityScorer 基于正文与发布时间给出 [0,1] 的质量分，grade 仅用于日志。
type QualityScorer interface {
	Score(text string, publishedAt, now time.Time) (score float64, grade string)
}

// LexicalQuery 是词法检索请求。
type LexicalQuery struct {
	Query string
	// IncludeGlobal 为 false 时只检索用户订阅范围内的文档
	IncludeGlobal bool
	UserID        int64
	TopK          int
	// MinScore 低于该分数的结果被丢弃
	MinScore float64
	// FeedIDs 非空时只检索这些 feed 下的文档，与订阅范围同时生效
	FeedIDs []int64
}

// LexicalRetriever 是 BM25 类词法检索。返回 DocScore 含 id、分数、发布时间、标题。
type LexicalRetriever interface {
	Search(ctx context.Context, q LexicalQuery) ([]DocScore, error)
}

// Content 是重排需要的正文与发布时间。
type Content struct {
	Title       string
	Text        string
	PublishedAt time.Time
}

// ContentStore 提供标题与正文；查不到的 id 不出现在结果中。
type ContentStore interface {
	Titles(ctx context.Context, ids []int64) (map[int64]string, error)
	Contents(ctx context.Context, ids []int64) (map[int64]Content, error)
}

// Embedder 把文本查询转为向量，供向量检索使用。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SubscriptionStore 返回用户订阅的 feed，用于检索时限定范围。
type SubscriptionStore interface {
	ActiveFeedIDs(ctx context.Context, userID int64) ([]int64, error)
}
