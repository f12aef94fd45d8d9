// Package retrieval 是检索链路：按查询文本/向量并发执行多个检索通道，
// 用共享的 fusion.Fuser（ModeMax）融合为有序的 DocScore 列表。
package retrieval

import (
	"context"
	"strings"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/conv"
)

// DefaultSimilarityThreshold 是向量检索的默认相似度下限。
const DefaultSimilarityThreshold = 0.3

// Query 是一次检索请求。
type Query struct {
	Text string
	// Embedding 为空且 Pipeline 配置了 Embedder 时由 Text 生成
	Embedding []float32
	UserID    int64
	// IncludeGlobal 为 false 时只检索用户订阅的 feed
	IncludeGlobal bool
	// FeedIDs 限定检索的 feed。非全局检索且 Pipeline 配置了 SubscriptionStore 时，
	// 为空则取用户订阅，非空则与用户订阅取交集
	FeedIDs []int64
	TopK    int
	// MinScore 词法检索的分数下限
	MinScore float64
}

// Handler 是一个检索通道。
type Handler interface {
	ID() core.StrategyID
	Supports(q Query) bool
	Handle(ctx context.Context, q Query) ([]core.DocScore, error)
}

// Bm25Handler 是词法检索通道，查询文本非空时生效。
type Bm25Handler struct {
	Retriever core.LexicalRetriever
}

func (h *Bm25Handler) ID() core.StrategyID { return core.StrategyBM25 }

func (h *Bm25Handler) Supports(q Query) bool {
	return h.Retriever != nil && strings.TrimSpace(q.Text) != ""
}

func (h *Bm25Handler) Handle(ctx context.Context, q Query) ([]core.DocScore, error) {
	docs, err := h.Retriever.Search(ctx, core.LexicalQuery{
		Query:         strings.TrimSpace(q.Text),
		IncludeGlobal: q.IncludeGlobal,
		UserID:        q.UserID,
		TopK:          q.TopK,
		MinScore:      q.MinScore,
		FeedIDs:       q.FeedIDs,
	})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Source = h.ID()
	}
	return docs, nil
}

// VectorHandler 是向量检索通道，查询向量非空时生效。
// 有 feed 列表时按 feed 过滤；低于 Threshold 的结果被丢弃。
type VectorHandler struct {
	Index core.AnnIndex
	// Threshold 相似度下限，<=0 时取 DefaultSimilarityThreshold
	Threshold float64
}

func (h *VectorHandler) ID() core.StrategyID { return core.StrategyVector }

func (h *VectorHandler) Supports(q Query) bool {
	return h.Index != nil && len(q.Embedding) > 0
}

func (h *VectorHandler) threshold() float64 {
	if h.Threshold <= 0 {
		return DefaultSimilarityThreshold
	}
	return h.Threshold
}

func (h *VectorHandler) Handle(ctx context.Context, q Query) ([]core.DocScore, error) {
	var filters map[string]any
	if len(q.FeedIDs) > 0 {
		filters = map[string]any{core.FilterFeedIDs: q.FeedIDs}
	}
	hits, err := h.Index.Query(ctx, q.Embedding, q.TopK, filters)
	if err != nil {
		return nil, err
	}
	floor := h.threshold()
	out := make([]core.DocScore, 0, len(hits))
	for _, hit := range hits {
		if hit.ID <= 0 || hit.Score < floor {
			continue
		}
		out = append(out, docFromHit(hit, h.ID()))
	}
	return out, nil
}

// docFromHit 从向量命中的元数据中取标题与发布时间。
func docFromHit(hit core.ScoredID, source core.StrategyID) core.DocScore {
	d := core.DocScore{DocID: hit.ID, Score: hit.Score, Source: source, Meta: hit.Metadata}
	d.Title, _ = hit.Metadata[core.AttrTitle].(string)
	d.PublishedAt, _ = conv.ToTime(hit.Metadata[core.AttrPublishedAt])
	return d
}
