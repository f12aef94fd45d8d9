// Package app 按配置组装存储、召回通道、引擎与 HTTP 服务。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/config"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/engine"
	"github.com/rushteam/recallkit/feast"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/fusion"
	"github.com/rushteam/recallkit/metrics"
	"github.com/rushteam/recallkit/pgstore"
	"github.com/rushteam/recallkit/recall"
	"github.com/rushteam/recallkit/rerank"
	"github.com/rushteam/recallkit/retrieval"
	"github.com/rushteam/recallkit/server"
	"github.com/rushteam/recallkit/service"
	"github.com/rushteam/recallkit/store"

	_ "github.com/rushteam/recallkit/config/builders"
)

// App 持有组装好的组件及其需要关闭的资源。
type App struct {
	Config   *config.Config
	Engine   *engine.Engine
	Server   *server.Server
	Registry *prometheus.Registry
	// KV 是 Redis 或内存 KV，榜单、共现、偏好、曝光与缓存都存在这里
	KV core.KeyValueStore
	// Postgres 未配置 DSN 时为空
	Postgres *pgstore.Store

	logger  *zap.Logger
	closers []func() error
}

// collaborators 是召回通道依赖的协作方，按是否配置 Postgres / Feast 选择实现。
type collaborators struct {
	lister      core.ItemLister
	sequence    core.SequenceStore
	coOccur     core.CoOccurIndex
	embeddings  core.EmbeddingStore
	ann         core.AnnIndex
	users       store.UserSimilarity
	preferences core.UserPreferenceService
	inverted    core.InvertedIndex
	attributes  engine.AttributeProvider
	contents    core.ContentStore
	freshness   core.FreshnessProvider
}

// New 根据配置组装服务。失败时已打开的资源会被关闭。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	deps, err := a.collaborators()
	if err != nil {
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	eng, err := a.buildEngine(deps, m)
	if err != nil {
		return nil, err
	}
	a.Engine = eng
	a.Server = server.New(eng, logger, server.Options{
		RequestTimeout: cfg.Engine.RequestTimeout,
		Gatherer:       a.Registry,
		SearchTopK:     cfg.Retrieval.TopK,
		SearchMinScore: cfg.Retrieval.MinScore,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.Redis.Addr != "" {
		rs, err := store.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		a.KV = rs
		a.closers = append(a.closers, rs.Close)
	} else {
		a.logger.Warn("redis.addr is empty, using in-memory store")
		a.KV = store.NewMemoryStore()
	}

	if cfg.Postgres.DSN != "" {
		pg, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
		a.Postgres = pg
	}
	return nil
}

func (a *App) collaborators() (*collaborators, error) {
	cfg := a.Config
	prefix := cfg.Cache.KeyPrefix
	d := &collaborators{
		coOccur:   &store.CoOccurIndex{KV: a.KV, Prefix: prefix},
		inverted:  &store.InvertedIndex{KV: a.KV, Prefix: prefix},
		freshness: core.NoopFreshness{},
	}

	if pg := a.Postgres; pg != nil {
		d.lister = pg
		d.sequence = pg
		d.embeddings = pg
		d.ann = pg
		d.users = pg
		d.contents = pg
		d.freshness = pg
	} else {
		vectors := store.NewMemoryVectorIndex("")
		d.lister = &store.ListIndex{KV: a.KV, Prefix: prefix}
		d.sequence = &store.SequenceStore{KV: a.KV, Prefix: prefix}
		d.embeddings = vectors
		d.ann = vectors
		d.users = vectors
	}

	d.preferences = &store.PreferenceStore{KV: a.KV, Prefix: prefix}
	if fc := cfg.Feast; fc.Endpoint != "" {
		opts := []feast.ClientOption{feast.WithTimeout(fc.Timeout)}
		if fc.Token != "" {
			opts = append(opts, feast.WithToken(fc.Token))
		}
		client, err := feast.NewClient(fc.Endpoint, fc.Project, opts...)
		if err != nil {
			return nil, fmt.Errorf("connect feast: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		if len(fc.PreferenceFeatures) > 0 {
			d.preferences = &feast.PreferenceService{Client: client, Project: fc.Project, Features: fc.PreferenceFeatures}
		}
		if len(fc.ProfileFeatures) > 0 {
			d.attributes = &feast.ProfileService{Client: client, Project: fc.Project, Features: fc.ProfileFeatures}
		}
	}
	return d, nil
}

// sources 按配置创建开启的召回通道。
func (a *App) sources(d *collaborators) []recall.Source {
	cfg := a.Config
	var out []recall.Source
	add := func(id core.StrategyID, s recall.Source) {
		if cfg.ChannelEnabled(id) {
			out = append(out, s)
		}
	}

	u2u := cfg.Channel(core.StrategyU2U)
	add(core.StrategyU2U, &recall.U2U{
		Finder:        &store.EmbeddingNeighborFinder{Users: d.users, Sequence: d.sequence, ItemsPerNeighbor: u2u.PerSeedLimit},
		NeighborLimit: u2u.Limit,
	})
	add(core.StrategyU2I, &recall.U2I{Embeddings: d.embeddings, Index: d.ann})

	i2i := cfg.Channel(core.StrategyI2I)
	add(core.StrategyI2I, &recall.I2I{Sequence: d.sequence, CoOccur: d.coOccur, SeedLimit: i2i.SeedLimit, PerSeedLimit: i2i.PerSeedLimit})

	u2i2i := cfg.Channel(core.StrategyU2I2I)
	add(core.StrategyU2I2I, &recall.U2I2I{
		Embeddings:   d.embeddings,
		Index:        d.ann,
		CoOccur:      d.coOccur,
		SeedLimit:    u2i2i.SeedLimit,
		PerSeedLimit: u2i2i.PerSeedLimit,
	})
	add(core.StrategyU2A2I, &recall.U2A2I{
		Preferences:    d.preferences,
		Index:          d.inverted,
		AttributeLimit: cfg.Channel(core.StrategyU2A2I).Limit,
	})

	latest := recall.NewLatest(d.lister)
	latest.Fallback = cfg.Channel(core.StrategyLatest).Fallback
	hot := recall.NewHot(d.lister, cfg.Channel(core.StrategyHot).Fallback...)
	add(core.StrategyLatest, latest)
	add(core.StrategyHot, hot)
	add(core.StrategyRandomI2I, &recall.RandomI2I{Lister: d.lister, CoOccur: d.coOccur})
	add(core.StrategyMix, &recall.Mix{Sources: []recall.Source{latest, hot}})
	return out
}

func (a *App) buildEngine(d *collaborators, m *metrics.Metrics) (*engine.Engine, error) {
	cfg := a.Config
	logger := a.logger

	registry := recall.NewRegistry(a.sources(d)...)
	eng := engine.New(registry, logger, m)
	eng.Planner = cfg.Planner()
	eng.DefaultFilters = cfg.DefaultFilters()
	eng.PageMultiplier = cfg.Engine.PageMultiplier

	eng.Fanout.ChannelTimeout = cfg.Engine.ChannelTimeout
	eng.Fanout.MaxConcurrent = cfg.Engine.MaxConcurrent
	eng.Fanout.BreakerFailures = cfg.Engine.BreakerFailures
	eng.Fanout.BreakerOpenAfter = cfg.Engine.BreakerOpenAfter

	fuser := fusion.NewFuser(d.freshness, logger)
	fuser.Freshness = cfg.Freshness()
	fuser.Mapping = cfg.ScoreMapping()
	eng.Fuser = fuser

	eng.Contexts = &engine.ContextFactory{
		Sequence:   d.sequence,
		Attributes: d.attributes,
		Limit:      cfg.Engine.RecentInteractions,
		Logger:     logger,
	}

	exposure := filter.NewStoreAdapter(a.KV, cfg.Cache.KeyPrefix)
	eng.Exposure = exposure
	filters, err := config.BuildFilters(cfg.Filters, config.FilterDeps{Store: exposure})
	if err != nil {
		return nil, err
	}
	eng.Filters = filters

	if cfg.Engine.Rerank {
		if d.contents != nil {
			eng.Reranker = rerank.NewReranker(d.contents, logger)
		} else {
			logger.Warn("rerank is enabled but no content store is configured, skipping rerank")
		}
	}

	switch cfg.Cache.Backend {
	case config.CacheMemory, "":
		mc, err := cache.NewMemory(cfg.Cache.Size, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		eng.Cache = mc
	case config.CacheRedis:
		eng.Cache = &cache.Store{KV: a.KV, Prefix: cfg.Cache.KeyPrefix, TTL: cfg.Cache.TTL}
	}

	if pg := a.Postgres; pg != nil {
		rc := cfg.Retrieval
		p := &retrieval.Pipeline{
			Handlers: []retrieval.WeightedHandler{
				{Handler: &retrieval.Bm25Handler{Retriever: pg}, Weight: rc.Bm25Weight},
				{Handler: &retrieval.VectorHandler{Index: pg, Threshold: rc.SimilarityThreshold}, Weight: rc.VectorWeight},
			},
			Fuser:         searchFuser(fuser),
			Subscriptions: pg,
			Logger:        logger,
		}
		if ec := cfg.Embedding; ec.Endpoint != "" {
			p.Embedder = service.NewEmbeddingClient(ec.Endpoint, ec.Model,
				service.WithEmbeddingTimeout(ec.Timeout), service.WithEmbeddingAuth(ec.Auth))
		}
		eng.Retrieval = p
	}
	return eng, nil
}

// Run 启动 HTTP 服务直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	sc := a.Config.Server
	return a.Server.Start(ctx, sc.Addr, sc.ReadTimeout, sc.WriteTimeout)
}

// Close 按打开的逆序关闭资源。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// searchFuser 复制推荐融合器并关闭分数映射，检索按原始通道分取最大值。
func searchFuser(f *fusion.Fuser) *fusion.Fuser {
	out := *f
	out.Mapping = fusion.MappingNone
	return &out
}
