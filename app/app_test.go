package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recallkit/config"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/engine"
	"github.com/rushteam/recallkit/fusion"
	"github.com/rushteam/recallkit/store"
)

func newMemoryApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Fusion.FreshnessWeight = 0
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func seedLists(t *testing.T, a *App, n int) {
	t.Helper()
	lists := &store.ListIndex{KV: a.KV, Prefix: a.Config.Cache.KeyPrefix}
	for id := int64(1); id <= int64(n); id++ {
		require.NoError(t, lists.Push(context.Background(), core.ListHot, id, float64(100-id)))
		require.NoError(t, lists.Push(context.Background(), core.ListLatest, id, float64(1700000000+id)))
	}
}

func TestNewInMemory(t *testing.T) {
	a := newMemoryApp(t, nil)
	assert.Nil(t, a.Postgres)
	assert.Nil(t, a.Engine.Retrieval, "search needs postgres")
	assert.Nil(t, a.Engine.Reranker, "rerank needs a content store")
	assert.NotNil(t, a.Engine.Cache)

	ids := a.Engine.Registry.IDs()
	assert.Contains(t, ids, core.StrategyHot)
	assert.Contains(t, ids, core.StrategyMix)
	assert.NotContains(t, ids, core.StrategyBM25)
}

func TestScoreMappingOnlyForRecommend(t *testing.T) {
	a := newMemoryApp(t, func(c *config.Config) { c.Fusion.ScoreMapping = "ranking" })
	require.NotNil(t, a.Engine.Fuser)
	assert.Equal(t, fusion.MappingRanking, a.Engine.Fuser.Mapping)

	search := searchFuser(a.Engine.Fuser)
	assert.Equal(t, fusion.MappingNone, search.Mapping)
	assert.Equal(t, a.Engine.Fuser.Freshness, search.Freshness)
	assert.Equal(t, fusion.MappingRanking, a.Engine.Fuser.Mapping, "copy leaves the recommend fuser untouched")
}

func TestChannelsFromConfig(t *testing.T) {
	a := newMemoryApp(t, func(c *config.Config) {
		c.Channels[string(core.StrategyMix)] = config.ChannelConfig{Disabled: true}
		delete(c.Channels, string(core.StrategyU2U))
		c.Cache.Backend = config.CacheNone
	})
	ids := a.Engine.Registry.IDs()
	assert.NotContains(t, ids, core.StrategyMix)
	assert.NotContains(t, ids, core.StrategyU2U)
	assert.Nil(t, a.Engine.Cache)
}

func TestRecommendOverHTTP(t *testing.T) {
	a := newMemoryApp(t, nil)
	seedLists(t, a, 30)

	w := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/recommend?user_id=5&size=10", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page engine.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Items, 10)
	assert.False(t, page.FromCache)

	w = httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/recommend?user_id=5&size=10&page=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.True(t, page.FromCache)

	w = httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/search?q=go&global=true", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestUnknownFilterType(t *testing.T) {
	cfg := config.Default()
	cfg.Filters = []config.FilterConfig{{Type: "bloom"}}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
