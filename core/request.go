package core

import (
	"strings"
	"time"
)

// RecallRequest 是一次召回请求。通过 NewRecallRequest 构造。
type RecallRequest struct {
	UserID      int64
	Scene       string
	TopK        int
	Debug       bool
	RequestTime time.Time

	filters map[string]any
}

// NewRecallRequest 构造请求：userID 必填；scene 默认 "default"；topK 至少为 1；
// requestTime 为零值时取当前时间。
func NewRecallRequest(userID int64, scene string, topK int, filters map[string]any, debug bool, requestTime time.Time) (*RecallRequest, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	if strings.TrimSpace(scene) == "" {
		scene = DefaultScene
	}
	if topK < 1 {
		topK = 1
	}
	if requestTime.IsZero() {
		requestTime = time.Now()
	}
	return &RecallRequest{
		UserID:      userID,
		Scene:       scene,
		TopK:        topK,
		Debug:       debug,
		RequestTime: requestTime,
		filters:     copyAnyMap(filters),
	}, nil
}

// Filters 返回过滤参数的副本。
func (r *RecallRequest) Filters() map[string]any { return copyAnyMap(r.filters) }

func (r *RecallRequest) Filter(key string) (any, bool) {
	v, ok := r.filters[key]
	return v, ok
}

// WithTopK 返回替换 topK 的副本。
func (r *RecallRequest) WithTopK(topK int) *RecallRequest {
	out := *r
	if topK < 1 {
		topK = 1
	}
	out.TopK = topK
	out.filters = copyAnyMap(r.filters)
	return &out
}

// FusionMode 决定跨通道同一物品的合并方式。
type FusionMode int

const (
	// ModeAdditive 求和：多通道一致性加分，用于个性化推荐。
	ModeAdditive FusionMode = iota
	// ModeMax 取最大：文本+向量命中同一文档时不重复计分，用于检索。
	ModeMax
)

func (m FusionMode) String() string {
	if m == ModeMax {
		return "max"
	}
	return "additive"
}

// DiversityConfig 按属性值限制同桶数量。key 为空或 cap <= 0 时不生效。
type DiversityConfig struct {
	AttributeKey    string
	MaxPerAttribute int
	// FillOverflow 为 true 时，各桶达到上限后用溢出候选回填剩余名额。
	FillOverflow bool
}

func (d DiversityConfig) Enabled() bool {
	return strings.TrimSpace(d.AttributeKey) != "" && d.MaxPerAttribute > 0
}

// FusionConfig 是融合参数。Weights 在构造时复制。
type FusionConfig struct {
	TopK        int
	Deduplicate bool
	Interleave  bool
	Mode        FusionMode
	Diversity   DiversityConfig

	weights map[StrategyID]float64
}

// NewFusionConfig 构造融合配置，topK 至少为 1。
func NewFusionConfig(topK int, dedup bool, weights map[StrategyID]float64, interleave bool, diversity DiversityConfig) FusionConfig {
	if topK < 1 {
		topK = 1
	}
	w := make(map[StrategyID]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return FusionConfig{
		TopK:        topK,
		Deduplicate: dedup,
		Interleave:  interleave,
		Diversity:   diversity,
		weights:     w,
	}
}

// WeightOf 返回通道权重，未配置时为 1.0。
func (f FusionConfig) WeightOf(id StrategyID) float64 {
	if w, ok := f.weights[id]; ok {
		return w
	}
	return 1.0
}

// Weights 返回权重副本。
func (f FusionConfig) Weights() map[StrategyID]float64 {
	out := make(map[StrategyID]float64, len(f.weights))
	for k, v := range f.weights {
		out[k] = v
	}
	return out
}

// WithMode 返回指定合并方式的副本。
func (f FusionConfig) WithMode(m FusionMode) FusionConfig {
	out := f
	out.Mode = m
	out.weights = f.Weights()
	return out
}

// RecallPlan 是各通道的 quota 与融合配置。未出现的通道 quota 为 0，不会被调用。
type RecallPlan struct {
	Fusion FusionConfig

	quotas map[StrategyID]int
}

// NewRecallPlan 构造召回计划，存在负 quota 时返回 ErrNegativeQuota。
func NewRecallPlan(quotas map[StrategyID]int, fusion FusionConfig) (*RecallPlan, error) {
	q := make(map[StrategyID]int, len(quotas))
	for id, n := range quotas {
		if n < 0 {
			return nil, WrapDomainError(ModuleRecall, ErrorCodeInvalidInput, "invalid plan for "+string(id), ErrNegativeQuota)
		}
		q[id] = n
	}
	return &RecallPlan{Fusion: fusion, quotas: q}, nil
}

func (p *RecallPlan) Quota(id StrategyID) int { return p.quotas[id] }

// Quotas 返回 quota 副本。
func (p *RecallPlan) Quotas() map[StrategyID]int {
	out := make(map[StrategyID]int, len(p.quotas))
	for k, v := range p.quotas {
		out[k] = v
	}
	return out
}

// Channels 返回 quota > 0 的通道，按声明顺序。
func (p *RecallPlan) Channels() []StrategyID {
	out := make([]StrategyID, 0, len(p.quotas))
	for id, n := range p.quotas {
		if n > 0 {
			out = append(out, id)
		}
	}
	SortStrategies(out)
	return out
}

// RecallResponse 是一次召回的结果。
type RecallResponse struct {
	Items          []Candidate
	ChannelResults map[StrategyID][]Candidate
	UserContext    *UserContext
	Latency        time.Duration
	Debug          map[string]any
}

// EmptyResponse 返回空结果。
func EmptyResponse() *RecallResponse {
	return &RecallResponse{
		ChannelResults: map[StrategyID][]Candidate{},
		Debug:          map[string]any{},
	}
}

// WithDebug 返回合并了额外 debug 信息的副本。
func (r *RecallResponse) WithDebug(extra map[string]any) *RecallResponse {
	out := *r
	out.Debug = copyAnyMap(r.Debug)
	for k, v := range extra {
		out.Debug[k] = v
	}
	return &out
}
