package recall

import (
	"math"
	"sort"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/conv"
)

// 请求过滤参数中控制融合行为的 key
const (
	FilterInterleave            = "interleaveChannels"
	FilterDeduplicate           = "deduplicate"
	FilterDiversityKey          = "diversityKey"
	FilterDiversityLimit        = "diversityLimit"
	FilterDiversityFillOverflow = "diversityFillOverflow"
)

// Planner 根据请求和可用通道生成召回计划。quota 分配是可替换的策略。
type Planner interface {
	Plan(req *core.RecallRequest, available []core.StrategyID) (*core.RecallPlan, error)
}

// WeightedPlanner 把 TopK*Overfetch 个名额按通道权重分给可用通道：
// 向下取整后按余数从大到小补齐，每个通道至少 1 个。
// Quotas 中显式配置的通道直接使用配置值（0 表示关闭该通道）。
type WeightedPlanner struct {
	// Overfetch 召回放大倍数，<=0 时取 2
	Overfetch int
	// Weights 覆盖通道默认权重
	Weights map[core.StrategyID]float64
	// Quotas 固定 quota
	Quotas map[core.StrategyID]int
}

func (p *WeightedPlanner) weight(id core.StrategyID) float64 {
	if w, ok := p.Weights[id]; ok {
		return w
	}
	return id.DefaultWeight()
}

func (p *WeightedPlanner) Plan(req *core.RecallRequest, available []core.StrategyID) (*core.RecallPlan, error) {
	overfetch := p.Overfetch
	if overfetch <= 0 {
		overfetch = 2
	}
	total := req.TopK * overfetch

	quotas := make(map[core.StrategyID]int, len(available))
	var dynamic []core.StrategyID
	for _, id := range available {
		if q, ok := p.Quotas[id]; ok {
			quotas[id] = q
			continue
		}
		dynamic = append(dynamic, id)
	}
	for id, q := range distribute(total, dynamic, p.weight) {
		quotas[id] = q
	}

	weights := make(map[core.StrategyID]float64, len(available))
	for _, id := range available {
		weights[id] = p.weight(id)
	}
	return core.NewRecallPlan(quotas, FusionFromFilters(req, weights))
}

// distribute 按权重分配 total 个名额（最大余数法），每个通道至少 1 个。
func distribute(total int, ids []core.StrategyID, weightOf func(core.StrategyID) float64) map[core.StrategyID]int {
	out := make(map[core.StrategyID]int, len(ids))
	if len(ids) == 0 {
		return out
	}
	sum := 0.0
	for _, id := range ids {
		sum += math.Max(weightOf(id), 0)
	}

	type share struct {
		id   core.StrategyID
		frac float64
		pos  int
	}
	shares := make([]share, 0, len(ids))
	assigned := 0
	for i, id := range ids {
		var exact float64
		if sum > 0 {
			exact = float64(total) * math.Max(weightOf(id), 0) / sum
		} else {
			exact = float64(total) / float64(len(ids))
		}
		n := int(math.Floor(exact))
		out[id] = n
		assigned += n
		shares = append(shares, share{id: id, frac: exact - float64(n), pos: i})
	}
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].frac != shares[j].frac {
			return shares[i].frac > shares[j].frac
		}
		return shares[i].pos < shares[j].pos
	})
	for i := 0; assigned < total && i < len(shares); i++ {
		out[shares[i].id]++
		assigned++
	}
	for id, n := range out {
		if n < 1 {
			out[id] = 1
		}
	}
	return out
}

// EvenPlanner 把 2*TopK 平均分给可用通道，每个通道至少 1 个。
type EvenPlanner struct{}

func (EvenPlanner) Plan(req *core.RecallRequest, available []core.StrategyID) (*core.RecallPlan, error) {
	quotas := make(map[core.StrategyID]int, len(available))
	weights := make(map[core.StrategyID]float64, len(available))
	if len(available) > 0 {
		per := max(1, req.TopK*2/len(available))
		for _, id := range available {
			quotas[id] = per
			weights[id] = id.DefaultWeight()
		}
	}
	return core.NewRecallPlan(quotas, FusionFromFilters(req, weights))
}

// FusionFromFilters 从请求过滤参数构造融合配置：
//   - interleaveChannels: 是否按通道交织，默认 false
//   - deduplicate: 是否按标题去重，默认 true
//   - diversityKey / diversityLimit / diversityFillOverflow: 多样性约束
func FusionFromFilters(req *core.RecallRequest, weights map[core.StrategyID]float64) core.FusionConfig {
	f := req.Filters()
	diversity := core.DiversityConfig{
		AttributeKey:    conv.ConfigGetString(f, FilterDiversityKey, ""),
		MaxPerAttribute: conv.ConfigGetInt(f, FilterDiversityLimit, 0),
		FillOverflow:    conv.ConfigGetBool(f, FilterDiversityFillOverflow, false),
	}
	return core.NewFusionConfig(
		req.TopK,
		conv.ConfigGetBool(f, FilterDeduplicate, true),
		weights,
		conv.ConfigGetBool(f, FilterInterleave, false),
		diversity,
	)
}
