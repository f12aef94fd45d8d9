// Package metrics 提供召回引擎的 Prometheus 指标。
//
// 指标：
//   - recall_channel_requests_total{channel,outcome}: 通道调用次数，outcome 为 ok/empty/error/timeout/open/panic
//   - recall_channel_latency_seconds{channel}: 通道耗时
//   - recall_cache_hits_total / recall_cache_misses_total: 分页缓存命中情况
//
// 所有方法对 nil *Metrics 安全，未配置指标时直接忽略。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 通道调用结果
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeOpen    = "open"
	OutcomePanic   = "panic"
)

type Metrics struct {
	ChannelRequests *prometheus.CounterVec
	ChannelLatency  *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// New 在 reg 上注册指标；reg 为 nil 时使用 prometheus.DefaultRegisterer。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ChannelRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_channel_requests_total",
				Help: "Total number of recall channel invocations",
			},
			[]string{"channel", "outcome"},
		),
		ChannelLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recall_channel_latency_seconds",
				Help:    "Latency of recall channel invocations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"channel"},
		),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "recall_cache_hits_total",
			Help: "Total number of recommendation page cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "recall_cache_misses_total",
			Help: "Total number of recommendation page cache misses",
		}),
	}
}

// ObserveChannel 记录一次通道调用。
func (m *Metrics) ObserveChannel(channel, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChannelRequests.WithLabelValues(channel, outcome).Inc()
	m.ChannelLatency.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
