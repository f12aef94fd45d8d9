package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/fusion"
	"github.com/rushteam/recallkit/metrics"
	"github.com/rushteam/recallkit/recall"
	"github.com/rushteam/recallkit/rerank"
	"github.com/rushteam/recallkit/retrieval"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	id    core.StrategyID
	items []core.ScoredID
	calls atomic.Int32
}

func (s *stubSource) ID() core.StrategyID { return s.id }

func (s *stubSource) Applicable(context.Context, *core.UserContext) bool { return true }

func (s *stubSource) Recall(_ context.Context, _ *core.UserContext, quota int) ([]core.Candidate, error) {
	s.calls.Add(1)
	out := make([]core.Candidate, 0, len(s.items))
	for _, it := range s.items {
		if len(out) == quota {
			break
		}
		out = append(out, it.ToCandidate(s.id))
	}
	return out, nil
}

// descending 生成 n 个物品，id 1 分数最高。
func descending(n int) []core.ScoredID {
	out := make([]core.ScoredID, n)
	for i := range out {
		out[i] = core.ScoredID{ID: int64(i + 1), Score: float64(n - i)}
	}
	return out
}

type fakeSequence []core.Interaction

func (f fakeSequence) RecentInteractions(context.Context, int64, int) ([]core.Interaction, error) {
	return f, nil
}

type failingSequence struct{}

func (failingSequence) RecentInteractions(context.Context, int64, int) ([]core.Interaction, error) {
	return nil, errors.New("redis down")
}

type fakeAttributes map[string]any

func (f fakeAttributes) UserAttributes(context.Context, int64) (map[string]any, error) { return f, nil }

type fakeExposure struct{ ids []int64 }

func (f *fakeExposure) MarkExposed(_ context.Context, _ int64, ids []int64, _ time.Time) error {
	f.ids = append(f.ids, ids...)
	return nil
}

func newEngine(sources ...recall.Source) *Engine {
	e := New(recall.NewRegistry(sources...), nil, nil)
	e.Fuser = &fusion.Fuser{Freshness: fusion.Freshness{Weight: 0}}
	e.Now = func() time.Time { return now }
	return e
}

func TestRecallFusesChannels(t *testing.T) {
	u2i := &stubSource{id: core.StrategyU2I, items: []core.ScoredID{{ID: 42, Score: 0.8}}}
	hot := &stubSource{id: core.StrategyHot, items: []core.ScoredID{{ID: 42, Score: 0.4}}}
	e := newEngine(u2i, hot)
	e.Planner = &recall.WeightedPlanner{Weights: map[core.StrategyID]float64{core.StrategyU2I: 1, core.StrategyHot: 1}}

	req, err := core.NewRecallRequest(7, "", 5, nil, true, now)
	require.NoError(t, err)
	resp, err := e.Recall(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(42), resp.Items[0].ItemID)
	assert.InDelta(t, 2.0, resp.Items[0].Score, 1e-9)
	assert.Len(t, resp.ChannelResults, 2)
	assert.Len(t, resp.Debug[DebugRequestID], 36)
	assert.Equal(t, map[string]int{"u2i": 5, "hot": 5}, resp.Debug[DebugQuotas])
	assert.Equal(t, []string{"u2i", "hot"}, resp.Debug[DebugAvailable])
	assert.Equal(t, 1, resp.Debug["channel.u2i.size"])
	assert.Contains(t, resp.Debug, DebugLatencyMs)
	assert.Equal(t, core.DefaultScene, resp.UserContext.Scene)
}

// blockingPrefs 在 ctx 结束前不返回。
type blockingPrefs struct{}

func (blockingPrefs) TopAttributes(ctx context.Context, _ int64, _ int) ([]core.AttributePreference, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type emptyInverted struct{}

func (emptyInverted) Query(context.Context, []core.AttributePreference, int) ([]core.ScoredID, error) {
	return nil, nil
}

func TestRecallSlowChannelCheck(t *testing.T) {
	hot := &stubSource{id: core.StrategyHot, items: descending(3)}
	e := newEngine(hot, &recall.U2A2I{Preferences: blockingPrefs{}, Index: emptyInverted{}})
	e.Fanout.ChannelTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req, err := core.NewRecallRequest(7, "", 5, nil, true, now)
	require.NoError(t, err)

	start := time.Now()
	resp, err := e.Recall(ctx, req)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	assert.Equal(t, int32(1), hot.calls.Load())
	assert.Equal(t, []int64{1, 2, 3}, core.CandidateIDs(resp.Items))
	assert.Equal(t, []string{"hot"}, resp.Debug[DebugAvailable])
	assert.Contains(t, resp.Debug["channel.u2a2i.error"], context.DeadlineExceeded.Error())
	assert.NotContains(t, resp.Debug, "channel.hot.error")
}

func TestRecallMissingUser(t *testing.T) {
	e := newEngine()
	_, err := e.Recall(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrMissingUserID)

	_, err = e.Recommend(context.Background(), RecommendRequest{})
	assert.ErrorIs(t, err, core.ErrMissingUserID)
}

func TestRecallWithoutChannels(t *testing.T) {
	e := newEngine()
	req, err := core.NewRecallRequest(7, "", 5, nil, false, now)
	require.NoError(t, err)
	resp, err := e.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Equal(t, []string{}, resp.Debug[DebugAvailable])
}

func TestRecallFilters(t *testing.T) {
	u2i := &stubSource{id: core.StrategyU2I, items: []core.ScoredID{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.5}, {ID: 3, Score: 0.1}}}
	e := newEngine(u2i)

	req, err := core.NewRecallRequest(7, "", 10, map[string]any{filter.FilterExpr: `item.score > 0.3`}, false, now)
	require.NoError(t, err)
	resp, err := e.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, core.CandidateIDs(resp.Items))
	assert.Equal(t, 1, resp.Debug["filter.expr.removed"])

	req, err = core.NewRecallRequest(7, "", 10, map[string]any{filter.FilterExpr: `item.score >`}, false, now)
	require.NoError(t, err)
	resp, err = e.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 3, "invalid expression is ignored")
	assert.Contains(t, resp.Debug, "filter.expr.error")

	e.Contexts = &ContextFactory{Sequence: fakeSequence{{ItemID: 1, Timestamp: now}}}
	e.Filters = []filter.Filter{filter.NewExposedFilter(nil, 0)}
	req, err = core.NewRecallRequest(7, "", 10, nil, false, now)
	require.NoError(t, err)
	resp, err = e.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, core.CandidateIDs(resp.Items))
}

func TestContextFactory(t *testing.T) {
	seq := make(fakeSequence, 200)
	for i := range seq {
		seq[i] = core.Interaction{ItemID: int64(i + 1), Timestamp: now}
	}
	f := &ContextFactory{Sequence: seq, Attributes: fakeAttributes{"lang": "zh"}}
	uctx, err := f.Build(context.Background(), 7, "home", now)
	require.NoError(t, err)
	assert.Len(t, uctx.Interactions(), DefaultRecentInteractions)
	assert.Equal(t, "home", uctx.Scene)
	lang, _ := uctx.Attribute("lang")
	assert.Equal(t, "zh", lang)

	f = &ContextFactory{Sequence: failingSequence{}}
	uctx, err = f.Build(context.Background(), 7, "", now)
	require.NoError(t, err)
	assert.False(t, uctx.HasInteractions())

	_, err = f.Build(context.Background(), 0, "", now)
	assert.ErrorIs(t, err, core.ErrMissingUserID)
}

func TestRecommendPaging(t *testing.T) {
	ctx := context.Background()
	hot := &stubSource{id: core.StrategyHot, items: descending(25)}
	e := newEngine(hot)
	m := metrics.New(prometheus.NewRegistry())
	e.Metrics = m
	mem, err := cache.NewMemory(10, 0)
	require.NoError(t, err)
	e.Cache = mem
	exposure := &fakeExposure{}
	e.Exposure = exposure

	page, err := e.Recommend(ctx, RecommendRequest{UserID: 7, Page: -1})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, DefaultPageSize, page.Size)
	assert.Equal(t, 25, page.Total)
	assert.False(t, page.FromCache)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, core.CandidateIDs(page.Items))
	assert.Equal(t, int32(1), hot.calls.Load())
	assert.Equal(t, core.CandidateIDs(page.Items), exposure.ids)

	page, err = e.Recommend(ctx, RecommendRequest{UserID: 7, Page: 1, Size: 10})
	require.NoError(t, err)
	assert.True(t, page.FromCache)
	assert.Equal(t, []int64{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, core.CandidateIDs(page.Items))
	assert.Equal(t, int32(1), hot.calls.Load(), "cached page does not call channels")

	page, err = e.Recommend(ctx, RecommendRequest{UserID: 7, Page: 3, Size: 10})
	require.NoError(t, err)
	assert.True(t, page.FromCache)
	assert.Empty(t, page.Items)
	assert.Equal(t, 25, page.Total)

	page, err = e.Recommend(ctx, RecommendRequest{UserID: 8, Page: 2, Size: 10})
	require.NoError(t, err)
	assert.False(t, page.FromCache)
	assert.Equal(t, []int64{21, 22, 23, 24, 25}, core.CandidateIDs(page.Items))
	assert.Equal(t, int32(2), hot.calls.Load())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
}

func TestRecommendRefreshesOnFirstPage(t *testing.T) {
	ctx := context.Background()
	hot := &stubSource{id: core.StrategyHot, items: descending(5)}
	e := newEngine(hot)
	mem, err := cache.NewMemory(10, 0)
	require.NoError(t, err)
	e.Cache = mem

	_, err = e.Recommend(ctx, RecommendRequest{UserID: 7, Size: 2})
	require.NoError(t, err)
	hot.items = descending(3)
	page, err := e.Recommend(ctx, RecommendRequest{UserID: 7, Size: 2, Debug: true})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Contains(t, page.Debug, DebugRequestID)

	entry, ok, err := mem.Get(ctx, 7, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, entry.Items, 3)
}

type fakeContents struct {
	contents map[int64]core.Content
	err      error
}

func (f *fakeContents) Titles(_ context.Context, ids []int64) (map[int64]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		out[id] = fmt.Sprintf("title %d", id)
	}
	return out, nil
}

func (f *fakeContents) Contents(context.Context, []int64) (map[int64]core.Content, error) {
	return f.contents, nil
}

type constScorer struct{}

func (constScorer) Score(string, time.Time, time.Time) (float64, string) { return 1, "A" }

func TestRecommendReranks(t *testing.T) {
	ctx := context.Background()
	e := newEngine(&stubSource{id: core.StrategyHot, items: descending(10)})
	contents := &fakeContents{contents: map[int64]core.Content{3: {Text: "x"}, 2: {Text: "y"}}}
	e.Reranker = &rerank.Reranker{Contents: contents, Scorer: constScorer{}}

	page, err := e.Recommend(ctx, RecommendRequest{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, core.CandidateIDs(page.Items))
	assert.Equal(t, "title 2", page.Items[0].Title())

	contents.err = errors.New("pg down")
	page, err = e.Recommend(ctx, RecommendRequest{UserID: 7})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "untitled candidates are dropped when titles cannot be loaded")
}

func TestRecommendRerankFailureDropsSeenTitles(t *testing.T) {
	hot := &stubSource{id: core.StrategyHot, items: []core.ScoredID{
		{ID: 1, Score: 3, Metadata: map[string]any{core.AttrTitle: "already read"}},
		{ID: 2, Score: 2, Metadata: map[string]any{core.AttrTitle: "fresh"}},
		{ID: 3, Score: 1},
	}}
	e := newEngine(hot)
	e.Contexts = &ContextFactory{Sequence: fakeSequence{{ItemID: 100, Title: "Already  Read", Timestamp: now}}}
	e.Reranker = &rerank.Reranker{Contents: &fakeContents{err: errors.New("pg down")}, Scorer: constScorer{}}

	page, err := e.Recommend(context.Background(), RecommendRequest{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, core.CandidateIDs(page.Items))
}

type fakeAnn struct{}

func (fakeAnn) Query(context.Context, []float32, int, map[string]any) ([]core.ScoredID, error) {
	return []core.ScoredID{{ID: 5, Score: 0.9}}, nil
}

func TestSearch(t *testing.T) {
	e := newEngine()
	_, err := e.Search(context.Background(), retrieval.Query{Text: "go"})
	assert.True(t, core.IsNotSupported(err))

	e.Retrieval = retrieval.NewPipeline(e.Fuser, nil, &retrieval.VectorHandler{Index: fakeAnn{}})
	docs, err := e.Search(context.Background(), retrieval.Query{Embedding: []float32{1}, IncludeGlobal: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(5), docs[0].DocID)
}

func TestRecallDefaultFilters(t *testing.T) {
	u2i := &stubSource{id: core.StrategyU2I, items: []core.ScoredID{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.5}, {ID: 3, Score: 0.1}}}
	e := newEngine(u2i)
	e.DefaultFilters = map[string]any{filter.FilterExpr: `item.score > 0.3`}

	req, err := core.NewRecallRequest(7, "", 10, nil, false, now)
	require.NoError(t, err)
	resp, err := e.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, core.CandidateIDs(resp.Items))

	req, err = core.NewRecallRequest(7, "", 10, map[string]any{filter.FilterExpr: `item.score >= 0.0`}, false, now)
	require.NoError(t, err)
	resp, err = e.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 3, "request value wins")
}
