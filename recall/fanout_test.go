package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/metrics"
)

func mustPlan(t *testing.T, quotas map[core.StrategyID]int) *core.RecallPlan {
	t.Helper()
	plan, err := core.NewRecallPlan(quotas, core.NewFusionConfig(10, true, nil, false, core.DiversityConfig{}))
	require.NoError(t, err)
	return plan
}

func TestFanoutIsolatesFailures(t *testing.T) {
	ok := &stubSource{id: core.StrategyU2I, items: []core.ScoredID{{ID: 1, Score: 3}, {ID: 2, Score: 2}, {ID: 3, Score: 1}}}
	failing := &stubSource{id: core.StrategyI2I, err: errors.New("redis down")}
	panicking := &stubSource{id: core.StrategyU2U, panicMsg: "boom"}
	slow := &stubSource{id: core.StrategyHot, sleep: 500 * time.Millisecond, ignoreCtx: true, items: []core.ScoredID{{ID: 9}}}

	m := metrics.New(prometheus.NewRegistry())
	f := &Fanout{
		Registry:       NewRegistry(ok, failing, panicking, slow),
		ChannelTimeout: 30 * time.Millisecond,
		MaxConcurrent:  2,
		Metrics:        m,
	}
	plan := mustPlan(t, map[core.StrategyID]int{
		core.StrategyU2I:    2,
		core.StrategyI2I:    5,
		core.StrategyU2U:    5,
		core.StrategyHot:    5,
		core.StrategyLatest: 5,
		core.StrategyBM25:   0,
	})

	results, debug := f.Run(context.Background(), newUser(), plan)

	assert.Equal(t, []int64{1, 2}, core.CandidateIDs(results[core.StrategyU2I]), "truncated to quota")
	assert.Empty(t, results[core.StrategyI2I])
	assert.Empty(t, results[core.StrategyU2U])
	assert.Empty(t, results[core.StrategyHot])
	assert.Empty(t, results[core.StrategyLatest])
	_, called := results[core.StrategyBM25]
	assert.False(t, called, "zero quota channel is not invoked")

	assert.Equal(t, 2, debug["channel.u2i.size"])
	assert.NotContains(t, debug, "channel.u2i.error")
	assert.Contains(t, debug["channel.i2i.error"], "redis down")
	assert.Contains(t, debug["channel.u2u.error"], "panicked")
	assert.Contains(t, debug["channel.hot.error"], context.DeadlineExceeded.Error())
	assert.Contains(t, debug["channel.latest.error"], "not registered")
	assert.Contains(t, debug, "channel.hot.latency_ms")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelRequests.WithLabelValues("u2i", metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelRequests.WithLabelValues("hot", metrics.OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelRequests.WithLabelValues("u2u", metrics.OutcomePanic)))
}

func TestFanoutBreakerOpens(t *testing.T) {
	failing := &stubSource{id: core.StrategyI2I, err: errors.New("unavailable")}
	f := &Fanout{Registry: NewRegistry(failing), BreakerFailures: 2, BreakerOpenAfter: time.Minute}
	plan := mustPlan(t, map[core.StrategyID]int{core.StrategyI2I: 3})

	for range 2 {
		f.Run(context.Background(), newUser(), plan)
	}
	_, debug := f.Run(context.Background(), newUser(), plan)

	assert.Equal(t, int32(2), failing.calls.Load(), "open breaker short-circuits the channel")
	assert.Contains(t, debug["channel.i2i.error"], "open")
}

func TestFanoutAvailable(t *testing.T) {
	f := &Fanout{
		Registry: NewRegistry(
			&stubSource{id: core.StrategyHot},
			&stubSource{id: core.StrategyU2U},
			&stubSource{id: core.StrategyI2I, skip: true},
			&stubSource{id: core.StrategyU2A2I, blockCheck: true},
			&stubSource{id: core.StrategyU2I, checkPanic: "boom"},
		),
		ChannelTimeout: 30 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	available, debug := f.Available(ctx, newUser())
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a blocked check is bounded by the channel timeout")

	assert.Equal(t, []core.StrategyID{core.StrategyU2U, core.StrategyHot}, available)
	assert.Contains(t, debug["channel.u2a2i.error"], context.DeadlineExceeded.Error())
	assert.Contains(t, debug["channel.u2i.error"], "panicked")
	assert.NotContains(t, debug, "channel.i2i.error", "not applicable is not an error")
	assert.NoError(t, ctx.Err(), "request context is still alive for the healthy channels")
}

func TestFanoutAvailableBreakerOpens(t *testing.T) {
	slow := &stubSource{id: core.StrategyU2A2I, blockCheck: true}
	f := &Fanout{
		Registry:         NewRegistry(slow),
		ChannelTimeout:   10 * time.Millisecond,
		BreakerFailures:  2,
		BreakerOpenAfter: time.Minute,
	}
	for range 2 {
		f.Available(context.Background(), newUser())
	}
	available, debug := f.Available(context.Background(), newUser())

	assert.Empty(t, available)
	assert.Equal(t, int32(2), slow.checks.Load(), "open breaker skips the check")
	assert.Contains(t, debug["channel.u2a2i.error"], "open")
}

func TestFanoutNilPlan(t *testing.T) {
	results, debug := (&Fanout{}).Run(context.Background(), newUser(), nil)
	assert.Empty(t, results)
	assert.Empty(t, debug)
}

func TestWeightedPlanner(t *testing.T) {
	req, err := core.NewRecallRequest(7, "", 10, nil, false, testNow)
	require.NoError(t, err)

	plan, err := (&WeightedPlanner{}).Plan(req, []core.StrategyID{core.StrategyU2I, core.StrategyI2I, core.StrategyHot})
	require.NoError(t, err)
	assert.Equal(t, map[core.StrategyID]int{core.StrategyU2I: 11, core.StrategyI2I: 8, core.StrategyHot: 1}, plan.Quotas())
	assert.Equal(t, 0.7, plan.Fusion.WeightOf(core.StrategyU2I))
	assert.True(t, plan.Fusion.Deduplicate)
	assert.False(t, plan.Fusion.Interleave)

	small, err := core.NewRecallRequest(7, "", 1, nil, false, testNow)
	require.NoError(t, err)
	plan, err = (&WeightedPlanner{}).Plan(small, []core.StrategyID{core.StrategyU2A2I, core.StrategyLatest, core.StrategyHot})
	require.NoError(t, err)
	assert.Equal(t, map[core.StrategyID]int{core.StrategyU2A2I: 2, core.StrategyLatest: 1, core.StrategyHot: 1}, plan.Quotas(),
		"every available channel gets at least one slot")
}

func TestWeightedPlannerOverrides(t *testing.T) {
	req, err := core.NewRecallRequest(7, "", 5, nil, false, testNow)
	require.NoError(t, err)
	p := &WeightedPlanner{
		Overfetch: 3,
		Quotas:    map[core.StrategyID]int{core.StrategyHot: 0},
		Weights:   map[core.StrategyID]float64{core.StrategyI2I: 2},
	}
	plan, err := p.Plan(req, []core.StrategyID{core.StrategyI2I, core.StrategyHot})
	require.NoError(t, err)
	assert.Equal(t, []core.StrategyID{core.StrategyI2I}, plan.Channels())
	assert.Equal(t, 15, plan.Quota(core.StrategyI2I))
	assert.Equal(t, 2.0, plan.Fusion.WeightOf(core.StrategyI2I))

	p.Quotas = map[core.StrategyID]int{core.StrategyHot: -1}
	_, err = p.Plan(req, []core.StrategyID{core.StrategyHot})
	assert.ErrorIs(t, err, core.ErrNegativeQuota)
}

func TestEvenPlanner(t *testing.T) {
	req, err := core.NewRecallRequest(7, "", 10, nil, false, testNow)
	require.NoError(t, err)
	plan, err := EvenPlanner{}.Plan(req, []core.StrategyID{core.StrategyU2I, core.StrategyI2I, core.StrategyHot})
	require.NoError(t, err)
	assert.Equal(t, map[core.StrategyID]int{core.StrategyU2I: 6, core.StrategyI2I: 6, core.StrategyHot: 6}, plan.Quotas())

	plan, err = EvenPlanner{}.Plan(req, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Channels())
}

func TestFusionFromFilters(t *testing.T) {
	req, err := core.NewRecallRequest(7, "", 10, map[string]any{
		FilterInterleave:            true,
		FilterDeduplicate:           false,
		FilterDiversityKey:          " feed_id ",
		FilterDiversityLimit:        "2",
		FilterDiversityFillOverflow: true,
	}, false, testNow)
	require.NoError(t, err)

	cfg := FusionFromFilters(req, map[core.StrategyID]float64{core.StrategyHot: 0.1})
	assert.True(t, cfg.Interleave)
	assert.False(t, cfg.Deduplicate)
	assert.Equal(t, core.DiversityConfig{AttributeKey: "feed_id", MaxPerAttribute: 2, FillOverflow: true}, cfg.Diversity)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 0.1, cfg.WeightOf(core.StrategyHot))
}
