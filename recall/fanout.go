package recall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/metrics"
)

const (
	DefaultChannelTimeout   = 500 * time.Millisecond
	DefaultBreakerFailures  = 5
	DefaultBreakerOpenAfter = 30 * time.Second
)

var errChannelPanic = errors.New("recall channel panicked")

// Fanout 并发执行召回计划中 quota > 0 的通道。
// 单个通道的错误、超时、panic、熔断都只会让该通道返回空结果，并记录到 debug 信息中，
// 不会中断整次召回。
type Fanout struct {
	Registry *Registry
	// ChannelTimeout 每个通道的超时时间，<=0 时取 DefaultChannelTimeout
	ChannelTimeout time.Duration
	// MaxConcurrent 最大并发数（0 表示无限制）
	MaxConcurrent int
	// BreakerFailures 连续失败多少次后熔断，<=0 时取 DefaultBreakerFailures
	BreakerFailures uint32
	// BreakerOpenAfter 熔断持续时间
	BreakerOpenAfter time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer

	mu       sync.Mutex
	breakers map[core.StrategyID]*gobreaker.CircuitBreaker[[]core.Candidate]
}

func NewFanout(registry *Registry, logger *zap.Logger, m *metrics.Metrics) *Fanout {
	return &Fanout{Registry: registry, Logger: logger, Metrics: m}
}

func (f *Fanout) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func (f *Fanout) tracer() trace.Tracer {
	if f.Tracer == nil {
		return otel.Tracer("github.com/rushteam/recallkit/recall")
	}
	return f.Tracer
}

func (f *Fanout) timeout() time.Duration {
	if f.ChannelTimeout <= 0 {
		return DefaultChannelTimeout
	}
	return f.ChannelTimeout
}

func (f *Fanout) breaker(id core.StrategyID) *gobreaker.CircuitBreaker[[]core.Candidate] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[id]; ok {
		return cb
	}
	if f.breakers == nil {
		f.breakers = make(map[core.StrategyID]*gobreaker.CircuitBreaker[[]core.Candidate])
	}
	failures := f.BreakerFailures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	openAfter := f.BreakerOpenAfter
	if openAfter <= 0 {
		openAfter = DefaultBreakerOpenAfter
	}
	logger := f.logger()
	cb := gobreaker.NewCircuitBreaker[[]core.Candidate](gobreaker.Settings{
		Name:        "recall." + string(id),
		MaxRequests: 1,
		Timeout:     openAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("recall channel breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	f.breakers[id] = cb
	return cb
}

// Available 并发检查各通道的前置数据，返回可用通道（声明顺序）与 debug 信息。
// 每个检查同样受 ChannelTimeout 与该通道熔断器约束；超时、panic 或熔断的通道视为不可用，
// 原因记录在 channel.<id>.error。
func (f *Fanout) Available(ctx context.Context, uctx *core.UserContext) ([]core.StrategyID, map[string]any) {
	debug := make(map[string]any)
	if f.Registry == nil {
		return nil, debug
	}
	ids := f.Registry.IDs()
	ok := make([]bool, len(ids))

	var mu sync.Mutex
	eg := &errgroup.Group{}
	if f.MaxConcurrent > 0 {
		eg.SetLimit(f.MaxConcurrent)
	}
	for i, id := range ids {
		eg.Go(func() error {
			applicable, err := f.checkChannel(ctx, id, uctx)
			ok[i] = applicable
			if err != nil {
				f.logger().Warn("recall channel check failed",
					zap.String("channel", string(id)),
					zap.Error(err))
				mu.Lock()
				debug["channel."+string(id)+".error"] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]core.StrategyID, 0, len(ids))
	for i, id := range ids {
		if ok[i] {
			out = append(out, id)
		}
	}
	return out, debug
}

func (f *Fanout) checkChannel(ctx context.Context, id core.StrategyID, uctx *core.UserContext) (bool, error) {
	src, found := f.Registry.Get(id)
	if !found {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	var applicable bool
	_, err := f.breaker(id).Execute(func() ([]core.Candidate, error) {
		var err error
		applicable, err = withDeadline(ctx, func(ctx context.Context) (bool, error) {
			return src.Applicable(ctx, uctx), nil
		})
		return nil, err
	})
	if err != nil {
		return false, fmt.Errorf("applicable check: %w", err)
	}
	return applicable, nil
}

// Run 按计划执行各通道，返回每个通道的候选（最多 quota 个）与 debug 信息：
//   - channel.<id>.size: 返回条数
//   - channel.<id>.latency_ms: 耗时
//   - channel.<id>.error: 失败原因（仅失败时）
func (f *Fanout) Run(ctx context.Context, uctx *core.UserContext, plan *core.RecallPlan) (map[core.StrategyID][]core.Candidate, map[string]any) {
	results := make(map[core.StrategyID][]core.Candidate)
	debug := make(map[string]any)
	if plan == nil {
		return results, debug
	}

	var mu sync.Mutex
	eg := &errgroup.Group{}
	if f.MaxConcurrent > 0 {
		eg.SetLimit(f.MaxConcurrent)
	}
	for _, id := range plan.Channels() {
		quota := plan.Quota(id)
		eg.Go(func() error {
			start := time.Now()
			items, err := f.runChannel(ctx, id, uctx, quota)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			results[id] = items
			prefix := "channel." + string(id)
			debug[prefix+".size"] = len(items)
			debug[prefix+".latency_ms"] = elapsed.Milliseconds()
			if err != nil {
				debug[prefix+".error"] = err.Error()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results, debug
}

func (f *Fanout) runChannel(ctx context.Context, id core.StrategyID, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	ctx, span := f.tracer().Start(ctx, "recall.channel",
		trace.WithAttributes(
			attribute.String("recall.channel", string(id)),
			attribute.Int("recall.quota", quota),
		))
	defer span.End()

	start := time.Now()
	items, err := f.invoke(ctx, id, uctx, quota)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case err == nil && len(items) == 0:
		outcome = metrics.OutcomeEmpty
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = metrics.OutcomeOpen
	case errors.Is(err, errChannelPanic):
		outcome = metrics.OutcomePanic
	default:
		outcome = metrics.OutcomeError
	}
	f.Metrics.ObserveChannel(string(id), outcome, elapsed)
	span.SetAttributes(attribute.Int("recall.size", len(items)), attribute.String("recall.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger().Warn("recall channel failed",
			zap.String("channel", string(id)),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	f.logger().Debug("recall channel done",
		zap.String("channel", string(id)),
		zap.Int("size", len(items)),
		zap.Duration("elapsed", elapsed))
	return items, nil
}

func (f *Fanout) invoke(ctx context.Context, id core.StrategyID, uctx *core.UserContext, quota int) ([]core.Candidate, error) {
	if f.Registry == nil {
		return nil, core.ErrChannelUnavailable
	}
	src, ok := f.Registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s not registered: %w", id, core.ErrChannelUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	items, err := f.breaker(id).Execute(func() ([]core.Candidate, error) {
		return withDeadline(ctx, func(ctx context.Context) ([]core.Candidate, error) {
			return src.Recall(ctx, uctx, quota)
		})
	})
	if err != nil {
		return nil, err
	}
	return sanitize(items, id, quota), nil
}

// withDeadline 在独立 goroutine 中执行 fn，ctx 到期后立即返回，不等待忽略 ctx 的实现。
func withDeadline[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: fmt.Errorf("%w: %v", errChannelPanic, r)}
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// sanitize 截断到 quota，丢弃非法 ID，并补齐缺失的来源。
func sanitize(items []core.Candidate, id core.StrategyID, quota int) []core.Candidate {
	out := make([]core.Candidate, 0, min(len(items), quota))
	for _, c := range items {
		if len(out) >= quota {
			break
		}
		if c.ItemID <= 0 {
			continue
		}
		if c.Source == "" {
			c = core.ScoredID{ID: c.ItemID, Score: c.Score, Metadata: c.Attributes}.ToCandidate(id)
		}
		out = append(out, c)
	}
	return out
}
