package retrieval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/fusion"
)

// ErrUnsupportedQuery 表示没有任何通道支持该查询（既无文本也无向量）。
var ErrUnsupportedQuery = core.NewDomainError(core.ModuleRetrieval, core.ErrorCodeInvalidInput, "query has neither text nor embedding")

// WeightedHandler 是带融合权重的检索通道。
type WeightedHandler struct {
	Handler Handler
	Weight  float64
}

// Pipeline 并发执行支持当前查询的通道，按 ModeMax 融合并按标题去重。
// 单个通道失败只会被跳过并记录日志。
type Pipeline struct {
	Handlers []WeightedHandler
	Fuser    *fusion.Fuser
	// Embedder 为查询文本生成向量，可为空
	Embedder core.Embedder
	// Subscriptions 为非全局检索加载订阅 feed，可为空
	Subscriptions core.SubscriptionStore
	Logger        *zap.Logger
	// Now 为空时使用 time.Now
	Now func() time.Time
}

// NewPipeline 使用默认权重（bm25 0.6，vector 0.4）组装 Pipeline。nil handler 被忽略。
func NewPipeline(fuser *fusion.Fuser, logger *zap.Logger, handlers ...Handler) *Pipeline {
	p := &Pipeline{Fuser: fuser, Logger: logger}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		p.Handlers = append(p.Handlers, WeightedHandler{Handler: h, Weight: h.ID().DefaultWeight()})
	}
	return p
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Execute 返回按融合分降序、截断到 TopK 的文档。
func (p *Pipeline) Execute(ctx context.Context, q Query) ([]core.DocScore, error) {
	if q.TopK <= 0 {
		q.TopK = 10
	}
	q, outOfScope := p.prepare(ctx, q)

	var (
		mu      sync.Mutex
		results = make(map[core.StrategyID][]core.Candidate)
		weights = make(map[core.StrategyID]float64)
		eg      errgroup.Group
	)
	for _, wh := range p.Handlers {
		h := wh.Handler
		if !h.Supports(q) {
			continue
		}
		weights[h.ID()] = wh.Weight
		if outOfScope {
			continue
		}
		eg.Go(func() error {
			docs, err := h.Handle(ctx, q)
			if err != nil {
				p.logger().Warn("retrieval handler failed",
					zap.String("handler", string(h.ID())), zap.Error(err))
				return nil
			}
			cands := make([]core.Candidate, 0, len(docs))
			for _, d := range docs {
				d.Source = h.ID()
				cands = append(cands, d.ToCandidate())
			}
			mu.Lock()
			results[h.ID()] = cands
			mu.Unlock()
			return nil
		})
	}
	if len(weights) == 0 {
		return nil, ErrUnsupportedQuery
	}
	if outOfScope {
		return []core.DocScore{}, nil
	}
	_ = eg.Wait()

	cfg := core.NewFusionConfig(q.TopK, true, weights, false, core.DiversityConfig{}).WithMode(core.ModeMax)
	fuser := p.Fuser
	if fuser == nil {
		fuser = fusion.NewFuser(nil, p.logger())
	}
	fused := fuser.Fuse(ctx, results, cfg, p.now())

	out := make([]core.DocScore, 0, len(fused))
	for _, c := range fused {
		out = append(out, core.DocScoreFromCandidate(c))
	}
	return out, nil
}

// prepare 补齐查询向量与订阅范围，失败时降级为不使用该信息。
// 订阅范围为空（未订阅，或指定的 feed 都不在订阅中）时 outOfScope 为 true。
func (p *Pipeline) prepare(ctx context.Context, q Query) (_ Query, outOfScope bool) {
	if len(q.Embedding) == 0 && q.Text != "" && p.Embedder != nil {
		vec, err := p.Embedder.Embed(ctx, q.Text)
		if err != nil {
			p.logger().Warn("embed query failed", zap.Error(err))
		} else {
			q.Embedding = vec
		}
	}
	if !q.IncludeGlobal && q.UserID > 0 && p.Subscriptions != nil {
		feeds, err := p.Subscriptions.ActiveFeedIDs(ctx, q.UserID)
		if err != nil {
			p.logger().Warn("load subscriptions failed", zap.Int64("user_id", q.UserID), zap.Error(err))
			return q, false
		}
		if len(q.FeedIDs) > 0 {
			feeds = intersectIDs(q.FeedIDs, feeds)
		}
		q.FeedIDs = feeds
		return q, len(feeds) == 0
	}
	return q, false
}

// intersectIDs 返回同时出现在 a 与 b 中的 ID，保持 a 的顺序。
func intersectIDs(a, b []int64) []int64 {
	set := make(map[int64]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	out := make([]int64, 0, len(a))
	for _, id := range a {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
