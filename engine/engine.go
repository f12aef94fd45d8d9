// Package engine 串起整条召回链路：
//
//	用户上下文 → 可用通道 → 召回计划 → 并发召回 → 归一化/新鲜度/融合 → 过滤 → (重排) → 分页
//
// 除每用户结果缓存外，Engine 不持有跨请求状态。
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/fusion"
	"github.com/rushteam/recallkit/metrics"
	"github.com/rushteam/recallkit/recall"
	"github.com/rushteam/recallkit/rerank"
	"github.com/rushteam/recallkit/retrieval"
)

// Debug 信息中的 key
const (
	DebugRequestID = "request_id"
	DebugQuotas    = "plan.quotas"
	DebugAvailable = "plan.available"
	DebugLatencyMs = "latency_ms"
	DebugFused     = "fusion.size"
)

// ExposureRecorder 记录返回给用户的物品，供后续曝光过滤使用。
type ExposureRecorder interface {
	MarkExposed(ctx context.Context, userID int64, itemIDs []int64, at time.Time) error
}

// Engine 是召回引擎。字段在启动时设置，之后只读，可并发使用。
type Engine struct {
	Registry *recall.Registry
	Planner  recall.Planner
	Fanout   *recall.Fanout
	Fuser    *fusion.Fuser
	Contexts *ContextFactory

	// DefaultFilters 是请求 filters 的默认值（去重、交织、多样性等），请求中已有的 key 优先
	DefaultFilters map[string]any
	// Filters 在融合之后对每次请求生效，请求级表达式过滤器由 filters["expr"] 给出
	Filters []filter.Filter
	// Reranker 为空时 Recommend 不重排
	Reranker *rerank.Reranker
	// Cache 为空时每页都重新召回
	Cache    cache.ResultCache
	Exposure ExposureRecorder
	// Retrieval 为空时 Search 返回 NOT_SUPPORTED
	Retrieval *retrieval.Pipeline
	// PageMultiplier Recommend 召回深度为 size*PageMultiplier，<=0 时取 DefaultPageMultiplier
	PageMultiplier int

	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Now 为空时使用 time.Now
	Now func() time.Time
}

// New 用默认的 planner / fanout / fuser 组装引擎。
func New(registry *recall.Registry, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		Registry: registry,
		Planner:  &recall.WeightedPlanner{},
		Fanout:   recall.NewFanout(registry, logger, m),
		Fuser:    fusion.NewFuser(nil, logger),
		Contexts: &ContextFactory{Logger: logger},
		Metrics:  m,
		Logger:   logger,
	}
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) contexts() *ContextFactory {
	if e.Contexts == nil {
		return &ContextFactory{Logger: e.Logger}
	}
	return e.Contexts
}

func (e *Engine) planner() recall.Planner {
	if e.Planner == nil {
		return &recall.WeightedPlanner{}
	}
	return e.Planner
}

func (e *Engine) fanout() *recall.Fanout {
	if e.Fanout == nil {
		return recall.NewFanout(e.Registry, e.Logger, e.Metrics)
	}
	return e.Fanout
}

func (e *Engine) fuser() *fusion.Fuser {
	if e.Fuser == nil {
		return fusion.NewFuser(nil, e.Logger)
	}
	return e.Fuser
}

// Recall 执行一次召回。只有缺少用户 ID 时返回错误；
// 其余失败（通道、计划、过滤）都降级为更少的结果，并记录在 Debug 中。
func (e *Engine) Recall(ctx context.Context, req *core.RecallRequest) (*core.RecallResponse, error) {
	if req == nil || req.UserID <= 0 {
		return nil, core.ErrMissingUserID
	}
	start := time.Now()
	req = e.withDefaults(req)
	logger := e.logger().With(zap.Int64("user_id", req.UserID), zap.String("scene", req.Scene))

	uctx, err := e.contexts().Build(ctx, req.UserID, req.Scene, req.RequestTime)
	if err != nil {
		return nil, err
	}

	resp := core.EmptyResponse()
	resp.UserContext = uctx
	resp.Debug[DebugRequestID] = uuid.NewString()
	defer func() {
		resp.Latency = time.Since(start)
		resp.Debug[DebugLatencyMs] = resp.Latency.Milliseconds()
	}()

	if e.Registry == nil {
		return resp, nil
	}
	fanout := e.fanout()
	available, checkDebug := fanout.Available(ctx, uctx)
	for k, v := range checkDebug {
		resp.Debug[k] = v
	}
	resp.Debug[DebugAvailable] = strategyNames(available)
	if len(available) == 0 {
		return resp, nil
	}

	plan, err := e.planner().Plan(req, available)
	if err != nil {
		logger.Warn("build recall plan failed", zap.Error(err))
		resp.Debug["plan.error"] = err.Error()
		return resp, nil
	}
	quotas := make(map[string]int, len(plan.Quotas()))
	for id, q := range plan.Quotas() {
		quotas[string(id)] = q
	}
	resp.Debug[DebugQuotas] = quotas

	results, channelDebug := fanout.Run(ctx, uctx, plan)
	for k, v := range channelDebug {
		resp.Debug[k] = v
	}
	resp.ChannelResults = results

	fused := e.fuser().Fuse(ctx, results, plan.Fusion, req.RequestTime)
	resp.Debug[DebugFused] = len(fused)

	resp.Items = e.filter(ctx, uctx, req, fused, resp.Debug)
	logger.Debug("recall done",
		zap.Int("channels", len(results)),
		zap.Int("fused", len(fused)),
		zap.Int("items", len(resp.Items)))
	return resp, nil
}

func (e *Engine) withDefaults(req *core.RecallRequest) *core.RecallRequest {
	if len(e.DefaultFilters) == 0 {
		return req
	}
	merged := req.Filters()
	added := false
	for k, v := range e.DefaultFilters {
		if _, ok := merged[k]; !ok {
			merged[k] = v
			added = true
		}
	}
	if !added {
		return req
	}
	out, err := core.NewRecallRequest(req.UserID, req.Scene, req.TopK, merged, req.Debug, req.RequestTime)
	if err != nil {
		return req
	}
	return out
}

func (e *Engine) filter(ctx context.Context, uctx *core.UserContext, req *core.RecallRequest, cands []core.Candidate, debug map[string]any) []core.Candidate {
	filters := append([]filter.Filter(nil), e.Filters...)
	exprFilter, err := filter.ExprFromFilters(req.Filters())
	if err != nil {
		debug["filter.expr.error"] = err.Error()
	} else if exprFilter != nil {
		filters = append(filters, exprFilter)
	}
	if len(filters) == 0 {
		return cands
	}

	res := filter.Apply(ctx, uctx, cands, filters...)
	for name, n := range res.Removed {
		debug[name+".removed"] = n
	}
	for name, ferr := range res.Errors {
		debug[name+".error"] = ferr.Error()
		e.logger().Warn("filter skipped", zap.String("filter", name), zap.Error(ferr))
	}
	return res.Items
}

// Search 执行文本/向量检索。
func (e *Engine) Search(ctx context.Context, q retrieval.Query) ([]core.DocScore, error) {
	if e.Retrieval == nil {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeNotSupported, "retrieval is not configured")
	}
	return e.Retrieval.Execute(ctx, q)
}

func strategyNames(ids []core.StrategyID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
