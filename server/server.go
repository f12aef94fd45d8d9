// Package server 是召回引擎的 HTTP 接口（gin）。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/engine"
	"github.com/rushteam/recallkit/retrieval"
)

// Recommender 是 HTTP 层依赖的引擎能力，由 *engine.Engine 实现。
type Recommender interface {
	Recommend(ctx context.Context, req engine.RecommendRequest) (*engine.Page, error)
	Search(ctx context.Context, q retrieval.Query) ([]core.DocScore, error)
}

type Options struct {
	// RequestTimeout 单个请求的超时，<=0 表示不限制
	RequestTimeout time.Duration
	// Gatherer 为空时不暴露 /metrics
	Gatherer prometheus.Gatherer
	// SearchTopK 是 /v1/search 未指定 top_k 时的默认值
	SearchTopK int
	// SearchMinScore 是词法检索的默认分数下限
	SearchMinScore float64
	// RateLimit 是 /v1 接口每秒允许的请求数，<=0 表示不限流
	RateLimit float64
	// RateBurst 突发请求数，<=0 时取 max(1, RateLimit)
	RateBurst int
}

type Server struct {
	router *gin.Engine
	engine Recommender
	logger *zap.Logger
	opts   Options
}

func New(rec Recommender, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		engine: rec,
		logger: logger,
		opts:   opts,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if s.opts.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/v1")
	if s.opts.RateLimit > 0 {
		v1.Use(rateLimit(s.opts.RateLimit, s.opts.RateBurst))
	}
	v1.Use(s.withTimeout())
	v1.GET("/recommend", s.recommend)
	v1.GET("/search", s.search)
}

// Handler 返回 http.Handler，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) withTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.RequestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// rateLimit 是全局令牌桶限流，超出时返回 429。
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Start 启动服务，ctx 取消后优雅退出。
func (s *Server) Start(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case core.IsInvalidInput(err):
		return http.StatusBadRequest
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsNotSupported(err):
		return http.StatusNotImplemented
	case core.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
