package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/fusion"
	"github.com/rushteam/recallkit/recall"
)

const sample = `
server:
  addr: ":9090"
log:
  level: debug
  format: json
engine:
  channel_timeout: 300ms
  overfetch: 3
fusion:
  freshness_weight: 0.2
  half_life: 24h
  interleave: true
  score_mapping: exploration
  diversity_key: feed_id
  diversity_limit: 2
channels:
  hot:
    quota: 0
  u2a2i:
    weight: 0.9
  mix:
    disabled: true
filters:
  - type: blacklist
    config:
      item_ids: [1, 2]
cache:
  backend: memory
  ttl: 10m
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 300*time.Millisecond, cfg.Engine.ChannelTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Fusion.HalfLife)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, PlannerWeighted, cfg.Engine.Planner, "default kept")
	assert.True(t, cfg.Fusion.Deduplicate, "default kept")
	assert.Equal(t, fusion.MappingExploration, cfg.ScoreMapping())

	assert.True(t, cfg.ChannelEnabled(core.StrategyU2U), "unlisted channels keep defaults")
	assert.True(t, cfg.ChannelEnabled(core.StrategyHot))
	assert.False(t, cfg.ChannelEnabled(core.StrategyMix))
	assert.False(t, cfg.ChannelEnabled(core.StrategyBM25))

	require.Len(t, cfg.Filters, 1)
	assert.Equal(t, "blacklist", cfg.Filters[0].Type)
	assert.Equal(t, []any{1, 2}, cfg.Filters[0].Config["item_ids"])
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := LoadFromYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Overfetch)

	_, err = LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"planner", func(c *Config) { c.Engine.Planner = "random" }},
		{"freshness", func(c *Config) { c.Fusion.FreshnessWeight = 1.5 }},
		{"channel", func(c *Config) { c.Channels["x2y"] = ChannelConfig{} }},
		{"quota", func(c *Config) { q := -1; c.Channels["hot"] = ChannelConfig{Quota: &q} }},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis cache without addr", func(c *Config) { c.Cache.Backend = CacheRedis }},
		{"filter type", func(c *Config) { c.Filters = []FilterConfig{{}} }},
		{"feast endpoint", func(c *Config) { c.Feast.ProfileFeatures = []string{"user:age"} }},
		{"rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"score mapping", func(c *Config) { c.Fusion.ScoreMapping = "aggressive" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRedisAddr:   "redis:6379",
		EnvPostgresDSN: "postgres://recall@db/recall",
		EnvLogLevel:    "",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "postgres://recall@db/recall", cfg.Postgres.DSN)
	assert.Equal(t, "info", cfg.Log.Level, "empty value ignored")
}

func TestPlanner(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	p, ok := cfg.Planner().(*recall.WeightedPlanner)
	require.True(t, ok)
	assert.Equal(t, 3, p.Overfetch)
	assert.Equal(t, map[core.StrategyID]int{core.StrategyHot: 0}, p.Quotas)
	assert.Equal(t, map[core.StrategyID]float64{core.StrategyU2A2I: 0.9}, p.Weights)

	cfg.Engine.Planner = PlannerEven
	assert.IsType(t, recall.EvenPlanner{}, cfg.Planner())
}

func TestFreshnessAndDefaultFilters(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	f := cfg.Freshness()
	assert.Equal(t, 0.2, f.Weight)
	assert.Equal(t, 24*time.Hour, f.HalfLife)

	assert.Equal(t, map[string]any{
		recall.FilterDeduplicate:    true,
		recall.FilterInterleave:     true,
		recall.FilterDiversityKey:   "feed_id",
		recall.FilterDiversityLimit: 2,
	}, cfg.DefaultFilters())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zap.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zap.InfoLevel, ParseLevel("verbose"))

	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}

type allowAll struct{}

func (allowAll) Name() string { return "filter.allow_all" }

func (allowAll) ShouldFilter(context.Context, *core.UserContext, core.Candidate) (bool, error) {
	return false, nil
}

func TestBuildFilters(t *testing.T) {
	Register("allow_all", func(map[string]any, FilterDeps) (filter.Filter, error) { return allowAll{}, nil })
	assert.Contains(t, SupportedTypes(), "allow_all")

	filters, err := BuildFilters([]FilterConfig{{Type: "allow_all"}}, FilterDeps{})
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "filter.allow_all", filters[0].Name())

	_, err = BuildFilters([]FilterConfig{{Type: "bloom"}}, FilterDeps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_all")
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadFromYAML(filepath.Join("..", "configs", "recall.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 768, cfg.Postgres.Dimension)
	assert.False(t, cfg.ChannelEnabled(core.StrategyRandomI2I))
	assert.Equal(t, []int64{1, 2, 3}, cfg.Channel(core.StrategyHot).Fallback)
	require.Len(t, cfg.Feast.PreferenceFeatures, 1)
	assert.Equal(t, "category", cfg.Feast.PreferenceFeatures[0].Attribute)
	assert.Len(t, cfg.Filters, 3)
	assert.Equal(t, 500.0, cfg.Server.RateLimit)
	assert.Equal(t, 100, cfg.Server.RateBurst)
}
