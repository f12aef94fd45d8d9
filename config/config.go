// Package config 负责服务配置：YAML 加载、环境变量覆盖、默认值与校验，
// 以及把配置转换为引擎各组件的参数（planner、freshness、过滤器等）。
//
// 使用配置构建过滤器时，需在入口处 import _ "github.com/rushteam/recallkit/config/builders"
// 以触发内置过滤器（blacklist、exposed、user_block）的 init 注册。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/engine"
	"github.com/rushteam/recallkit/feast"
	"github.com/rushteam/recallkit/fusion"
	"github.com/rushteam/recallkit/pgstore"
	"github.com/rushteam/recallkit/recall"
	"github.com/rushteam/recallkit/service"
	"github.com/rushteam/recallkit/store"
)

// 环境变量覆盖
const (
	EnvRedisAddr   = "RECALL_REDIS_ADDR"
	EnvPostgresDSN = "RECALL_POSTGRES_DSN"
	EnvLogLevel    = "RECALL_LOG_LEVEL"
)

// 缓存后端
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// 召回计划器
const (
	PlannerWeighted = "weighted"
	PlannerEven     = "even"
)

// Config 是服务的完整配置。
type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Log       LogConfig                `yaml:"log"`
	Engine    EngineConfig             `yaml:"engine"`
	Fusion    FusionConfig             `yaml:"fusion"`
	Channels  map[string]ChannelConfig `yaml:"channels"`
	Filters   []FilterConfig           `yaml:"filters"`
	Retrieval RetrievalConfig          `yaml:"retrieval"`
	Cache     CacheConfig              `yaml:"cache"`
	Redis     store.RedisOptions       `yaml:"redis"`
	Postgres  pgstore.Options          `yaml:"postgres"`
	Feast     FeastConfig              `yaml:"feast"`
	Embedding EmbeddingConfig          `yaml:"embedding"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// RateLimit 每秒请求数，0 表示不限流
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type LogConfig struct {
	// Level: debug / info / warn / error
	Level string `yaml:"level"`
	// Format: console / json
	Format string `yaml:"format"`
}

type EngineConfig struct {
	ChannelTimeout time.Duration `yaml:"channel_timeout"`
	// RequestTimeout 整个请求的超时，0 表示不限制
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	Overfetch      int           `yaml:"overfetch"`
	// Planner: weighted / even
	Planner            string        `yaml:"planner"`
	Rerank             bool          `yaml:"rerank"`
	PageMultiplier     int           `yaml:"page_multiplier"`
	RecentInteractions int           `yaml:"recent_interactions"`
	BreakerFailures    uint32        `yaml:"breaker_failures"`
	BreakerOpenAfter   time.Duration `yaml:"breaker_open_after"`
}

type FusionConfig struct {
	FreshnessWeight float64       `yaml:"freshness_weight"`
	Lambda          float64       `yaml:"lambda"`
	HalfLife        time.Duration `yaml:"half_life"`
	Deduplicate     bool          `yaml:"deduplicate"`
	Interleave      bool          `yaml:"interleave"`
	DiversityKey    string        `yaml:"diversity_key"`
	DiversityLimit  int           `yaml:"diversity_limit"`
	// ScoreMapping 为 ranking、balanced、exploration 之一，空值不映射；只作用于推荐融合
	ScoreMapping string `yaml:"score_mapping"`
}

// ChannelConfig 是单个召回通道的开关与参数。
type ChannelConfig struct {
	// Disabled 关闭该通道；默认配置中所有内置通道都开启
	Disabled bool `yaml:"disabled"`
	// Quota 非空时固定该通道的 quota，0 表示关闭
	Quota *int `yaml:"quota"`
	// Weight 非空时覆盖通道默认权重
	Weight       *float64 `yaml:"weight"`
	SeedLimit    int      `yaml:"seed_limit"`
	PerSeedLimit int      `yaml:"per_seed_limit"`
	Limit        int      `yaml:"limit"`
	// Fallback 热门/最新榜为空时使用的物品
	Fallback []int64 `yaml:"fallback"`
}

// FilterConfig 是单个过滤器的配置，Config 的内容由对应类型的 builder 解析。
type FilterConfig struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

type RetrievalConfig struct {
	Bm25Weight          float64 `yaml:"bm25_weight"`
	VectorWeight        float64 `yaml:"vector_weight"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	MinScore            float64 `yaml:"min_score"`
}

type CacheConfig struct {
	// Backend: memory / redis / none
	Backend   string        `yaml:"backend"`
	Size      int           `yaml:"size"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type FeastConfig struct {
	Endpoint           string                    `yaml:"endpoint"`
	Project            string                    `yaml:"project"`
	Timeout            time.Duration             `yaml:"timeout"`
	Token              string                    `yaml:"token"`
	PreferenceFeatures []feast.PreferenceFeature `yaml:"preference_features"`
	ProfileFeatures    []string                  `yaml:"profile_features"`
}

// EmbeddingConfig 是查询向量化服务的配置，Endpoint 为空时检索只走词法通道。
type EmbeddingConfig struct {
	Endpoint string              `yaml:"endpoint"`
	Model    string              `yaml:"model"`
	Timeout  time.Duration       `yaml:"timeout"`
	Auth     *service.AuthConfig `yaml:"auth"`
}

// Default 返回默认配置：所有通道开启、内存缓存、不连接外部存储。
func Default() *Config {
	channels := make(map[string]ChannelConfig, len(core.AllStrategies()))
	for _, id := range core.AllStrategies() {
		if id == core.StrategyBM25 || id == core.StrategyVector {
			continue
		}
		channels[string(id)] = ChannelConfig{}
	}
	freshness := fusion.DefaultFreshness()
	return &Config{
		Server: ServerConfig{Addr: ":8080", ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second},
		Log:    LogConfig{Level: "info", Format: "console"},
		Engine: EngineConfig{
			ChannelTimeout:     recall.DefaultChannelTimeout,
			RequestTimeout:     2 * time.Second,
			Overfetch:          2,
			Planner:            PlannerWeighted,
			Rerank:             true,
			PageMultiplier:     engine.DefaultPageMultiplier,
			RecentInteractions: engine.DefaultRecentInteractions,
			BreakerFailures:    recall.DefaultBreakerFailures,
			BreakerOpenAfter:   recall.DefaultBreakerOpenAfter,
		},
		Fusion: FusionConfig{
			FreshnessWeight: freshness.Weight,
			Lambda:          freshness.Lambda,
			HalfLife:        freshness.HalfLife,
			Deduplicate:     true,
		},
		Channels: channels,
		Retrieval: RetrievalConfig{
			Bm25Weight:          core.StrategyBM25.DefaultWeight(),
			VectorWeight:        core.StrategyVector.DefaultWeight(),
			SimilarityThreshold: 0.3,
			TopK:                10,
		},
		Cache:     CacheConfig{Backend: CacheMemory, Size: 10000, KeyPrefix: "recall:", TTL: 30 * time.Minute},
		Postgres:  pgstore.Options{Dimension: pgstore.DefaultDimension, TextConfig: pgstore.DefaultTextConfig},
		Feast:     FeastConfig{Timeout: 200 * time.Millisecond},
		Embedding: EmbeddingConfig{Timeout: 2 * time.Second},
	}
}

// LoadFromYAML 从 YAML 文件加载配置：先取默认值，再用文件内容覆盖，最后应用环境变量并校验。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，规则同 LoadFromYAML。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖地址与日志级别。lookup 一般为 os.LookupEnv。
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup(EnvPostgresDSN); ok && v != "" {
		c.Postgres.DSN = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate 校验配置，返回所有问题合并后的错误。
func (c *Config) Validate() error {
	var errs []error
	switch c.Engine.Planner {
	case "", PlannerWeighted, PlannerEven:
	default:
		errs = append(errs, fmt.Errorf("engine.planner: unknown planner %q", c.Engine.Planner))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must be >= 0"))
	}
	if c.Engine.Overfetch < 0 {
		errs = append(errs, errors.New("engine.overfetch must be >= 0"))
	}
	if c.Engine.MaxConcurrent < 0 {
		errs = append(errs, errors.New("engine.max_concurrent must be >= 0"))
	}
	if c.Fusion.FreshnessWeight < 0 || c.Fusion.FreshnessWeight > 1 {
		errs = append(errs, fmt.Errorf("fusion.freshness_weight must be in [0,1], got %v", c.Fusion.FreshnessWeight))
	}
	if _, ok := fusion.ParseScoreMapping(c.Fusion.ScoreMapping); !ok {
		errs = append(errs, fmt.Errorf("fusion.score_mapping: unknown mapping %q", c.Fusion.ScoreMapping))
	}
	for name, ch := range c.Channels {
		if _, ok := core.ParseStrategyID(name); !ok {
			errs = append(errs, fmt.Errorf("channels: unknown strategy %q", name))
			continue
		}
		if ch.Quota != nil && *ch.Quota < 0 {
			errs = append(errs, fmt.Errorf("channels.%s.quota must be >= 0", name))
		}
		if ch.Weight != nil && *ch.Weight < 0 {
			errs = append(errs, fmt.Errorf("channels.%s.weight must be >= 0", name))
		}
	}
	switch c.Cache.Backend {
	case "", CacheMemory, CacheNone:
	case CacheRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.backend redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	for i, f := range c.Filters {
		if f.Type == "" {
			errs = append(errs, fmt.Errorf("filters[%d]: type is required", i))
		}
	}
	if len(c.Feast.PreferenceFeatures)+len(c.Feast.ProfileFeatures) > 0 && c.Feast.Endpoint == "" {
		errs = append(errs, errors.New("feast features require feast.endpoint"))
	}
	return errors.Join(errs...)
}

// ChannelEnabled 报告通道是否开启；未出现在 channels 中的通道视为关闭。
func (c *Config) ChannelEnabled(id core.StrategyID) bool {
	ch, ok := c.Channels[string(id)]
	return ok && !ch.Disabled
}

// Channel 返回通道配置，未配置时返回零值。
func (c *Config) Channel(id core.StrategyID) ChannelConfig {
	return c.Channels[string(id)]
}

// Planner 根据 engine.planner 与通道覆盖项构造召回计划器。
func (c *Config) Planner() recall.Planner {
	if c.Engine.Planner == PlannerEven {
		return recall.EvenPlanner{}
	}
	p := &recall.WeightedPlanner{Overfetch: c.Engine.Overfetch}
	for name, ch := range c.Channels {
		id := core.StrategyID(name)
		if ch.Weight != nil {
			if p.Weights == nil {
				p.Weights = make(map[core.StrategyID]float64)
			}
			p.Weights[id] = *ch.Weight
		}
		if ch.Quota != nil {
			if p.Quotas == nil {
				p.Quotas = make(map[core.StrategyID]int)
			}
			p.Quotas[id] = *ch.Quota
		}
	}
	return p
}

// ScoreMapping 返回推荐融合使用的分数映射，未知值按不映射处理。
func (c *Config) ScoreMapping() fusion.ScoreMapping {
	m, _ := fusion.ParseScoreMapping(c.Fusion.ScoreMapping)
	return m
}

func (c *Config) Freshness() fusion.Freshness {
	return fusion.Freshness{
		Weight:   c.Fusion.FreshnessWeight,
		Lambda:   c.Fusion.Lambda,
		HalfLife: c.Fusion.HalfLife,
	}
}

// DefaultFilters 把融合配置转换为请求 filters 的默认值。
func (c *Config) DefaultFilters() map[string]any {
	out := map[string]any{
		recall.FilterDeduplicate: c.Fusion.Deduplicate,
		recall.FilterInterleave:  c.Fusion.Interleave,
	}
	if c.Fusion.DiversityKey != "" && c.Fusion.DiversityLimit > 0 {
		out[recall.FilterDiversityKey] = c.Fusion.DiversityKey
		out[recall.FilterDiversityLimit] = c.Fusion.DiversityLimit
	}
	return out
}
