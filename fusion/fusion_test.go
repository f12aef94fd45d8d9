package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recallkit/core"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func cand(id int64, score float64, src core.StrategyID, attrs map[string]any) core.Candidate {
	c, err := core.NewCandidate(id, score, src, attrs)
	if err != nil {
		panic(err)
	}
	return c
}

func noFreshness() *Fuser {
	return &Fuser{Freshness: Freshness{Weight: 0}}
}

func TestMinMaxScores(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", nil, []float64{}},
		{"single", []float64{0.42}, []float64{1}},
		{"all equal", []float64{3, 3, 3}, []float64{1, 1, 1}},
		{"spread", []float64{0, 5, 10}, []float64{0, 0.5, 1}},
		{"negative", []float64{-2, 2}, []float64{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinMaxScores(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestFreshnessFactor(t *testing.T) {
	f := DefaultFreshness()
	assert.Equal(t, 0.5, f.Factor(now.Add(-48*time.Hour), now))
	assert.Equal(t, 0.25, f.Factor(now.Add(-96*time.Hour), now))
	assert.Equal(t, 1.0, f.Factor(now.Add(time.Hour), now))
	assert.Equal(t, 0.0, f.Factor(time.Time{}, now))

	custom := Freshness{Weight: 0.3, Lambda: 0.8, HalfLife: 24 * time.Hour}
	assert.InDelta(t, 0.8, custom.Factor(now.Add(-24*time.Hour), now), 1e-12)

	// 非法参数被收敛
	n := Freshness{Weight: 2, Lambda: 0, HalfLife: -1}.Normalized()
	assert.Equal(t, 1.0, n.Weight)
	assert.Equal(t, 0.01, n.Lambda)
	assert.Equal(t, DefaultHalfLife, n.HalfLife)
}

func TestFreshnessBlend(t *testing.T) {
	f := DefaultFreshness()
	assert.InDelta(t, 1.0*0.7+0.5*0.3, f.Blend(1.0, 0.5), 1e-12)
	assert.InDelta(t, 0.7, f.Apply(1.0, time.Time{}, now), 1e-12)
	assert.Equal(t, 0.8, Freshness{Weight: 0}.Blend(0.8, 1))
}

func TestFuseWeightedSum(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		"a": {cand(1, 0.3, "a", nil)},
		"b": {cand(1, 0.9, "b", nil)},
	}
	cfg := core.NewFusionConfig(10, false, map[core.StrategyID]float64{"a": 1.0, "b": 0.5}, false, core.DiversityConfig{})

	out := noFreshness().Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.5, out[0].Score, 1e-12)
	assert.Equal(t, []string{"a", "b"}, out[0].Labels[core.LabelRecallSource].Values())
}

func TestFuseMaxMode(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyBM25:   {cand(1, 3, core.StrategyBM25, nil), cand(2, 1, core.StrategyBM25, nil)},
		core.StrategyVector: {cand(1, 0.9, core.StrategyVector, nil)},
	}
	cfg := core.NewFusionConfig(10, false, map[core.StrategyID]float64{core.StrategyBM25: 0.6, core.StrategyVector: 0.4}, false, core.DiversityConfig{}).WithMode(core.ModeMax)

	out := noFreshness().Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ItemID)
	assert.InDelta(t, 0.6, out[0].Score, 1e-12)
	assert.Equal(t, 0.0, out[1].Score)
}

func TestFuseEndToEndTwoChannels(t *testing.T) {
	// 42 在 u2u 中是最高分（归一化 1.0），在 i2i 中居中（归一化 0.5）
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyU2U: {cand(42, 0.8, core.StrategyU2U, nil), cand(1, 0.0, core.StrategyU2U, nil)},
		core.StrategyI2I: {cand(42, 0.4, core.StrategyI2I, nil), cand(2, 0.0, core.StrategyI2I, nil), cand(3, 0.8, core.StrategyI2I, nil)},
	}
	cfg := core.NewFusionConfig(10, true, map[core.StrategyID]float64{core.StrategyU2U: 1, core.StrategyI2I: 1}, false, core.DiversityConfig{})

	for i := 0; i < 3; i++ {
		out := noFreshness().Fuse(context.Background(), results, cfg, now)
		require.NotEmpty(t, out)
		assert.Equal(t, int64(42), out[0].ItemID)
		assert.InDelta(t, 1.5, out[0].Score, 1e-12)
		assert.Equal(t, core.StrategyU2U, out[0].Source)
	}
}

func TestFuseFreshnessAppliedOnce(t *testing.T) {
	pub := map[string]any{core.AttrPublishedAt: now.Add(-48 * time.Hour)}
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyU2U: {cand(1, 1, core.StrategyU2U, pub)},
		core.StrategyI2I: {cand(1, 1, core.StrategyI2I, pub)},
	}
	cfg := core.NewFusionConfig(10, false, map[core.StrategyID]float64{core.StrategyU2U: 1, core.StrategyI2I: 1}, false, core.DiversityConfig{})

	out := NewFuser(nil, nil).Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 1)
	assert.InDelta(t, 2.0*0.7+0.5*0.3, out[0].Score, 1e-12)
}

type stubFreshness struct {
	times map[int64]time.Time
	err   error
}

func (s stubFreshness) PublishedAt(context.Context, []int64) (map[int64]time.Time, error) {
	return s.times, s.err
}

func TestFuseFreshnessProvider(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyHot: {cand(1, 1, core.StrategyHot, nil), cand(2, 1, core.StrategyHot, nil)},
	}
	cfg := core.NewFusionConfig(10, false, nil, false, core.DiversityConfig{})

	f := NewFuser(stubFreshness{times: map[int64]time.Time{2: now}}, nil)
	out := f.Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ItemID)
	assert.InDelta(t, 1.0, out[0].Score, 1e-12)
	assert.InDelta(t, 0.7, out[1].Score, 1e-12)

	// provider 出错时按未知发布时间处理
	f = NewFuser(stubFreshness{err: errors.New("db down")}, nil)
	out = f.Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.7, out[0].Score, 1e-12)
}

func TestFuseDedupByTitle(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyU2U: {cand(1, 1, core.StrategyU2U, map[string]any{"title": "Go 1.25 Released", "feed_id": 1})},
		core.StrategyHot: {cand(2, 1, core.StrategyHot, map[string]any{"title": "go 1.25  released", "feed_id": 2}), cand(3, 0, core.StrategyHot, nil)},
	}
	cfg := core.NewFusionConfig(10, true, nil, false, core.DiversityConfig{})

	out := noFreshness().Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ItemID)
	assert.Equal(t, 1, out[0].Attributes["feed_id"])

	cfg.Deduplicate = false
	out = noFreshness().Fuse(context.Background(), results, cfg, now)
	assert.Len(t, out, 3)
}

func TestFuseDiversityNoFill(t *testing.T) {
	var list []core.Candidate
	for i := int64(1); i <= 5; i++ {
		list = append(list, cand(i, float64(i), core.StrategyHot, map[string]any{"feed_id": 7}))
	}
	results := map[core.StrategyID][]core.Candidate{core.StrategyHot: list}
	div := core.DiversityConfig{AttributeKey: "feed_id", MaxPerAttribute: 2}

	out := noFreshness().Fuse(context.Background(), results, core.NewFusionConfig(5, false, nil, false, div), now)
	require.Len(t, out, 2)
	assert.Equal(t, []int64{5, 4}, core.CandidateIDs(out))

	div.FillOverflow = true
	out = noFreshness().Fuse(context.Background(), results, core.NewFusionConfig(5, false, nil, false, div), now)
	assert.Len(t, out, 5)
}

func TestDiversifyMixedBuckets(t *testing.T) {
	cands := []core.Candidate{
		cand(1, 1, core.StrategyHot, map[string]any{"feed_id": 1}),
		cand(2, 1, core.StrategyHot, map[string]any{"feed_id": 1}),
		cand(3, 1, core.StrategyHot, nil),
		cand(4, 1, core.StrategyHot, map[string]any{"feed_id": 2}),
	}
	out := Diversify(cands, core.DiversityConfig{AttributeKey: "feed_id", MaxPerAttribute: 1}, 10)
	assert.Equal(t, []int64{1, 3, 4}, core.CandidateIDs(out))

	out = Diversify(cands, core.DiversityConfig{AttributeKey: "feed_id", MaxPerAttribute: 1, FillOverflow: true}, 3)
	assert.Equal(t, []int64{1, 3, 4}, core.CandidateIDs(out))

	assert.Equal(t, cands, Diversify(cands, core.DiversityConfig{}, 2))
}

func TestFuseTopK(t *testing.T) {
	var list []core.Candidate
	for i := int64(1); i <= 20; i++ {
		list = append(list, cand(i, float64(i%7), core.StrategyLatest, nil))
	}
	results := map[core.StrategyID][]core.Candidate{core.StrategyLatest: list}

	out := noFreshness().Fuse(context.Background(), results, core.NewFusionConfig(5, false, nil, false, core.DiversityConfig{}), now)
	require.Len(t, out, 5)
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.ItemID < cur.ItemID))
	}
	assert.Equal(t, []int64{6, 13, 20, 5, 12}, core.CandidateIDs(out))
}

func TestFuseInterleave(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyHot: {cand(10, 9, core.StrategyHot, nil), cand(11, 8, core.StrategyHot, nil), cand(12, 7, core.StrategyHot, nil)},
		core.StrategyU2U: {cand(20, 1, core.StrategyU2U, nil), cand(21, 0, core.StrategyU2U, nil)},
	}
	cfg := core.NewFusionConfig(4, false, nil, true, core.DiversityConfig{})

	out := noFreshness().Fuse(context.Background(), results, cfg, now)
	assert.Equal(t, []int64{20, 10, 21, 11}, core.CandidateIDs(out))
}

func TestFuseEmpty(t *testing.T) {
	out := noFreshness().Fuse(context.Background(), nil, core.NewFusionConfig(5, true, nil, false, core.DiversityConfig{}), now)
	assert.Empty(t, out)
}

func TestDedupByTitleKeepsFirstMetadata(t *testing.T) {
	cands := []core.Candidate{
		cand(1, 0.2, core.StrategyU2U, map[string]any{"title": "Rust 2024", "feed_id": 1}),
		cand(2, 0.9, core.StrategyHot, map[string]any{"title": " rust  2024 ", "feed_id": 2}),
		cand(3, 0.5, core.StrategyHot, nil),
	}
	out := DedupByTitle(cands)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ItemID)
	assert.Equal(t, 1, out[0].Attributes["feed_id"])
	assert.InDelta(t, 0.9, out[0].Score, 1e-12, "higher score of the collapsed pair")
	assert.Equal(t, int64(3), out[1].ItemID)
}

func TestFuseZeroTopKKeepsAll(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyHot: {cand(1, 3, core.StrategyHot, nil), cand(2, 2, core.StrategyHot, nil), cand(3, 1, core.StrategyHot, nil)},
	}
	out := noFreshness().Fuse(context.Background(), results, core.FusionConfig{}, now)
	assert.Equal(t, []int64{1, 2, 3}, core.CandidateIDs(out))
}

func TestScoreMapping(t *testing.T) {
	tests := []struct {
		mapping ScoreMapping
		in      float64
		want    float64
	}{
		{MappingNone, 0.2, 0.2},
		{MappingNone, 3, 3},
		{MappingBalanced, 0, 0.5},
		{MappingBalanced, 0.5, 0.75},
		{MappingBalanced, 1, 1},
		{MappingRanking, 0, 0.5},
		{MappingRanking, 0.15, 0.55},
		{MappingRanking, 0.3, 0.6},
		{MappingRanking, 0.5, 0.7},
		{MappingRanking, 0.7, 0.8},
		{MappingRanking, 1, 1},
		{MappingExploration, 0, 0.5},
		{MappingExploration, 0.25, 0.625},
		{MappingExploration, 0.5, 0.75},
		{MappingExploration, 1, 1},
		{MappingBalanced, -1, 0.5},
		{MappingRanking, 2, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.mapping.Map(tt.in), 1e-9, "%s(%v)", tt.mapping, tt.in)
	}

	m, ok := ParseScoreMapping("exploration")
	assert.True(t, ok)
	assert.Equal(t, MappingExploration, m)
	_, ok = ParseScoreMapping("")
	assert.True(t, ok)
	_, ok = ParseScoreMapping("aggressive")
	assert.False(t, ok)
}

func TestFuseWithScoreMapping(t *testing.T) {
	results := map[core.StrategyID][]core.Candidate{
		core.StrategyHot: {cand(1, 10, core.StrategyHot, nil), cand(2, 5, core.StrategyHot, nil), cand(3, 0, core.StrategyHot, nil)},
	}
	cfg := core.NewFusionConfig(10, false, map[core.StrategyID]float64{core.StrategyHot: 0.5}, false, core.DiversityConfig{})

	f := noFreshness()
	f.Mapping = MappingRanking
	out := f.Fuse(context.Background(), results, cfg, now)
	require.Len(t, out, 3)
	assert.Equal(t, []int64{1, 2, 3}, core.CandidateIDs(out))
	assert.InDelta(t, 0.5, out[0].Score, 1e-12)
	assert.InDelta(t, 0.35, out[1].Score, 1e-12)
	assert.InDelta(t, 0.25, out[2].Score, 1e-12, "lowest item keeps half of the channel weight")
}
