package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/fusion"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeLexical struct {
	docs []core.DocScore
	err  error
	last core.LexicalQuery
}

func (f *fakeLexical) Search(_ context.Context, q core.LexicalQuery) ([]core.DocScore, error) {
	f.last = q
	return f.docs, f.err
}

type fakeAnn struct {
	hits        []core.ScoredID
	lastFilters map[string]any
}

func (f *fakeAnn) Query(_ context.Context, _ []float32, _ int, filters map[string]any) ([]core.ScoredID, error) {
	f.lastFilters = filters
	return f.hits, nil
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, nil }

type fakeSubs []int64

func (f fakeSubs) ActiveFeedIDs(context.Context, int64) ([]int64, error) { return f, nil }

func noFreshness() *fusion.Fuser {
	return &fusion.Fuser{Freshness: fusion.Freshness{Weight: 0}}
}

func TestPipelineFusesWithMaxAndDedup(t *testing.T) {
	lexical := &fakeLexical{docs: []core.DocScore{
		{DocID: 1, Score: 10, Title: "A", PublishedAt: now.Add(-time.Hour)},
		{DocID: 2, Score: 5, Title: "B"},
		{DocID: 3, Score: 0, Title: "C"},
	}}
	ann := &fakeAnn{hits: []core.ScoredID{
		{ID: 2, Score: 0.9, Metadata: map[string]any{core.AttrTitle: "B"}},
		{ID: 4, Score: 0.5, Metadata: map[string]any{core.AttrTitle: " a "}},
		{ID: 5, Score: 0.2, Metadata: map[string]any{core.AttrTitle: "E"}},
	}}
	p := NewPipeline(noFreshness(), nil, &Bm25Handler{Retriever: lexical}, &VectorHandler{Index: ann})
	p.Now = func() time.Time { return now }

	docs, err := p.Execute(context.Background(), Query{Text: "go", Embedding: []float32{1}, IncludeGlobal: true, TopK: 10})
	require.NoError(t, err)

	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.InDelta(t, 0.6, docs[0].Score, 1e-9)
	assert.InDelta(t, 0.4, docs[1].Score, 1e-9, "max of 0.3 (bm25) and 0.4 (vector)")
	assert.Equal(t, "A", docs[0].Title)
	assert.Equal(t, now.Add(-time.Hour), docs[0].PublishedAt)
	assert.Equal(t, core.StrategyBM25, docs[1].Source)
	assert.Nil(t, ann.lastFilters, "global search has no feed filter")
}

func TestPipelineScopesToSubscriptions(t *testing.T) {
	ann := &fakeAnn{hits: []core.ScoredID{{ID: 9, Score: 0.8}}}
	p := &Pipeline{
		Handlers:      []WeightedHandler{{Handler: &VectorHandler{Index: ann, Threshold: 0.5}, Weight: 1}},
		Fuser:         noFreshness(),
		Embedder:      fakeEmbedder{vec: []float32{0.1, 0.2}},
		Subscriptions: fakeSubs{3, 4},
	}
	docs, err := p.Execute(context.Background(), Query{Text: "rust", UserID: 7, TopK: 5})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(9), docs[0].DocID)
	assert.Equal(t, map[string]any{core.FilterFeedIDs: []int64{3, 4}}, ann.lastFilters)
}

func TestPipelineFeedScope(t *testing.T) {
	tests := []struct {
		name      string
		feeds     []int64
		global    bool
		wantScope []int64
		wantDocs  int
	}{
		{name: "intersects with subscriptions", feeds: []int64{5, 4}, wantScope: []int64{4}, wantDocs: 2},
		{name: "defaults to subscriptions", wantScope: []int64{3, 4}, wantDocs: 2},
		{name: "global keeps requested feeds", feeds: []int64{5}, global: true, wantScope: []int64{5}, wantDocs: 2},
		{name: "no overlap", feeds: []int64{8}, wantDocs: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexical := &fakeLexical{docs: []core.DocScore{{DocID: 1, Score: 2, Title: "lexical"}}}
			ann := &fakeAnn{hits: []core.ScoredID{{ID: 2, Score: 0.8, Metadata: map[string]any{core.AttrTitle: "vector"}}}}
			p := NewPipeline(noFreshness(), nil, &Bm25Handler{Retriever: lexical}, &VectorHandler{Index: ann})
			p.Subscriptions = fakeSubs{3, 4}

			docs, err := p.Execute(context.Background(), Query{
				Text: "go", Embedding: []float32{1}, UserID: 7, FeedIDs: tt.feeds, IncludeGlobal: tt.global,
			})
			require.NoError(t, err)
			assert.Len(t, docs, tt.wantDocs)
			if tt.wantDocs == 0 {
				assert.Empty(t, lexical.last.Query, "handlers are not called when nothing is in scope")
				assert.Nil(t, ann.lastFilters)
				return
			}
			assert.Equal(t, tt.wantScope, lexical.last.FeedIDs)
			assert.Equal(t, map[string]any{core.FilterFeedIDs: tt.wantScope}, ann.lastFilters)
		})
	}
}

func TestPipelineSkipsFailedHandler(t *testing.T) {
	p := NewPipeline(noFreshness(), nil,
		&Bm25Handler{Retriever: &fakeLexical{err: errors.New("pg down")}},
		&VectorHandler{Index: &fakeAnn{hits: []core.ScoredID{{ID: 1, Score: 0.9}}}},
	)
	docs, err := p.Execute(context.Background(), Query{Text: "x", Embedding: []float32{1}, IncludeGlobal: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, core.StrategyVector, docs[0].Source)
}

func TestPipelineUnsupportedQuery(t *testing.T) {
	p := NewPipeline(noFreshness(), nil, &Bm25Handler{Retriever: &fakeLexical{}})
	_, err := p.Execute(context.Background(), Query{Text: "   "})
	assert.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestBm25HandlerPassesQuery(t *testing.T) {
	lexical := &fakeLexical{docs: []core.DocScore{{DocID: 1, Score: 1}}}
	h := &Bm25Handler{Retriever: lexical}
	docs, err := h.Handle(context.Background(), Query{Text: " golang ", UserID: 3, TopK: 7, MinScore: 0.1})
	require.NoError(t, err)
	assert.Equal(t, core.LexicalQuery{Query: "golang", UserID: 3, TopK: 7, MinScore: 0.1}, lexical.last)
	assert.Equal(t, core.StrategyBM25, docs[0].Source)
}

func TestVectorHandlerThreshold(t *testing.T) {
	h := &VectorHandler{Index: &fakeAnn{hits: []core.ScoredID{
		{ID: 1, Score: 0.31, Metadata: map[string]any{core.AttrPublishedAt: int64(1700000000)}},
		{ID: 2, Score: 0.29},
		{ID: 0, Score: 0.99},
	}}}
	assert.False(t, h.Supports(Query{}))
	docs, err := h.Handle(context.Background(), Query{Embedding: []float32{1}, TopK: 3})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), docs[0].PublishedAt)
}
