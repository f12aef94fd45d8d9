// Package fusion 负责多路召回结果的归一化、新鲜度衰减、跨通道合并、去重与多样性控制。
// 推荐链路与检索链路共用同一套实现，区别只在 core.FusionMode。
package fusion

import (
	"math"
	"time"

	"github.com/rushteam/recallkit/core"
)

// MinMaxScores 把分数线性映射到 [0,1]。max == min（含单个元素）时全部为 1.0。
// NaN/Inf 视为 0 参与计算。
func MinMaxScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range scores {
		s = finite(s)
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	span := hi - lo
	for i, s := range scores {
		if span == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (finite(s) - lo) / span
	}
	return out
}

// MinMax 对单个通道的候选做 min-max 归一化，返回副本。
func MinMax(cands []core.Candidate) []core.Candidate {
	scores := make([]float64, len(cands))
	for i, c := range cands {
		scores[i] = c.Score
	}
	norm := MinMaxScores(scores)
	out := make([]core.Candidate, len(cands))
	for i, c := range cands {
		out[i] = c.WithScore(norm[i])
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// 新鲜度默认值
const (
	DefaultFreshnessWeight = 0.3
	DefaultFreshnessLambda = 0.5
	DefaultHalfLife        = 48 * time.Hour
)

// Freshness 是指数时间衰减：factor = Lambda ^ (hours / halfLifeHours)，
// 最终分 = raw*(1-Weight) + factor*Weight。
type Freshness struct {
	Weight   float64
	Lambda   float64
	HalfLife time.Duration
}

func DefaultFreshness() Freshness {
	return Freshness{
		Weight:   DefaultFreshnessWeight,
		Lambda:   DefaultFreshnessLambda,
		HalfLife: DefaultHalfLife,
	}
}

// Normalized 把参数收敛到合法范围：Weight∈[0,1]，Lambda∈[0.01,1]，HalfLife<=0 时取 48h。
func (f Freshness) Normalized() Freshness {
	f.Weight = clamp(f.Weight, 0, 1)
	f.Lambda = clamp(f.Lambda, 0.01, 1)
	if f.HalfLife <= 0 {
		f.HalfLife = DefaultHalfLife
	}
	return f
}

// Factor 计算新鲜度因子。发布时间未知为 0，未来时间为 1。
func (f Freshness) Factor(publishedAt, now time.Time) float64 {
	if publishedAt.IsZero() {
		return 0
	}
	f = f.Normalized()
	if !publishedAt.Before(now) {
		return 1
	}
	hours := now.Sub(publishedAt).Hours()
	halfLife := math.Max(1, f.HalfLife.Hours())
	score := math.Pow(f.Lambda, hours/halfLife)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return clamp(score, 0, 1)
}

// Blend 按权重混合原始分与新鲜度因子。
func (f Freshness) Blend(raw, factor float64) float64 {
	w := clamp(f.Weight, 0, 1)
	return raw*(1-w) + factor*w
}

// Apply = Blend(raw, Factor(publishedAt, now))
func (f Freshness) Apply(raw float64, publishedAt, now time.Time) float64 {
	return f.Blend(raw, f.Factor(publishedAt, now))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
