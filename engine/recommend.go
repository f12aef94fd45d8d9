package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/rerank"
)

const (
	DefaultPageSize = 10
	// DefaultPageMultiplier 第 0 页召回 size*6 个候选，后续页从缓存中切片
	DefaultPageMultiplier = 6
)

// RecommendRequest 是一次分页推荐请求。Page 从 0 开始。
type RecommendRequest struct {
	UserID  int64
	Scene   string
	Page    int
	Size    int
	Filters map[string]any
	Debug   bool
}

// Page 是一页推荐结果。Total 是缓存列表的总长度。
type Page struct {
	Items     []core.Candidate `json:"items"`
	Page      int              `json:"page"`
	Size      int              `json:"size"`
	Total     int              `json:"total"`
	FromCache bool             `json:"from_cache"`
	Debug     map[string]any   `json:"debug,omitempty"`
}

func (e *Engine) pageMultiplier() int {
	if e.PageMultiplier <= 0 {
		return DefaultPageMultiplier
	}
	return e.PageMultiplier
}

// Recommend 返回分页推荐。
//
// 第 0 页或缓存未命中时重新召回 size*PageMultiplier 个候选，重排后整体写入该用户的缓存（覆盖旧值）；
// 第 N 页（N>0）缓存命中时直接从缓存切片，不调用任何召回通道。
func (e *Engine) Recommend(ctx context.Context, req RecommendRequest) (*Page, error) {
	if req.UserID <= 0 {
		return nil, core.ErrMissingUserID
	}
	if req.Page < 0 {
		req.Page = 0
	}
	if req.Size <= 0 {
		req.Size = DefaultPageSize
	}
	if req.Scene == "" {
		req.Scene = core.DefaultScene
	}
	logger := e.logger().With(zap.Int64("user_id", req.UserID), zap.String("scene", req.Scene))

	if req.Page > 0 && e.Cache != nil {
		entry, ok, err := e.Cache.Get(ctx, req.UserID, req.Scene)
		if err != nil {
			logger.Warn("read result cache failed", zap.Error(err))
		}
		if ok && entry != nil {
			e.Metrics.CacheHit()
			page := slicePage(entry.Items, req.Page, req.Size, true)
			e.recordExposure(ctx, req.UserID, page.Items)
			return page, nil
		}
		e.Metrics.CacheMiss()
	}

	now := e.now()
	rr, err := core.NewRecallRequest(req.UserID, req.Scene, req.Size*e.pageMultiplier(), req.Filters, req.Debug, now)
	if err != nil {
		return nil, err
	}
	resp, err := e.Recall(ctx, rr)
	if err != nil {
		return nil, err
	}

	items := resp.Items
	if e.Reranker != nil && len(items) > 0 {
		reranked, err := e.Reranker.Rerank(ctx, resp.UserContext, items, now)
		if err != nil {
			logger.Warn("rerank failed, using fused order without seen titles", zap.Error(err))
			items = rerank.DropSeen(resp.UserContext, items, nil)
		} else {
			items = reranked
		}
	}

	if e.Cache != nil {
		entry := &cache.Entry{UserID: req.UserID, Scene: req.Scene, Items: items, CreatedAt: now}
		if err := e.Cache.Put(ctx, entry); err != nil {
			logger.Warn("write result cache failed", zap.Error(err))
		}
	}

	page := slicePage(items, req.Page, req.Size, false)
	if req.Debug {
		page.Debug = resp.Debug
	}
	e.recordExposure(ctx, req.UserID, page.Items)
	return page, nil
}

func (e *Engine) recordExposure(ctx context.Context, userID int64, items []core.Candidate) {
	if e.Exposure == nil || len(items) == 0 {
		return
	}
	if err := e.Exposure.MarkExposed(ctx, userID, core.CandidateIDs(items), e.now()); err != nil {
		e.logger().Warn("record exposure failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// slicePage 取第 page 页；越界时返回空页。
func slicePage(items []core.Candidate, page, size int, fromCache bool) *Page {
	p := &Page{Page: page, Size: size, Total: len(items), FromCache: fromCache, Items: []core.Candidate{}}
	start := page * size
	if start >= len(items) {
		return p
	}
	end := min(start+size, len(items))
	p.Items = items[start:end]
	return p
}
