// Package metrics 定义比价流程的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deal_ranker"

// Metrics 各组件共享的指标，nil 接收者上的方法都是空操作。
type Metrics struct {
	SourceRequests  *prometheus.CounterVec
	SourceListings  *prometheus.CounterVec
	Rankings        *prometheus.CounterVec
	CompareRuns     *prometheus.CounterVec
	CompareDuration prometheus.Histogram
}

// New 创建并注册指标，reg 为 nil 时使用默认注册表。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregate",
				Name:      "source_requests_total",
				Help:      "Source searches by outcome",
			},
			[]string{"source", "status"},
		),
		SourceListings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregate",
				Name:      "source_listings_total",
				Help:      "Usable listings returned per source",
			},
			[]string{"source"},
		),
		Rankings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rank",
				Name:      "rankings_total",
				Help:      "Ranking calls by scorer mode",
			},
			[]string{"mode"},
		),
		CompareRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compare",
				Name:      "runs_total",
				Help:      "Compare runs by outcome status",
			},
			[]string{"status"},
		),
		CompareDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "compare",
				Name:      "run_duration_seconds",
				Help:      "Duration of compare runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}
}

// SourceResult 记录单个来源的结果。
func (m *Metrics) SourceResult(source string, listings int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SourceRequests.WithLabelValues(source, status).Inc()
	m.SourceListings.WithLabelValues(source).Add(float64(listings))
}

// Ranked 记录一次排序使用的打分方式，mode 为 primary 或 fallback。
func (m *Metrics) Ranked(mode string) {
	if m == nil {
		return
	}
	m.Rankings.WithLabelValues(mode).Inc()
}

// CompareFinished 记录一次比价运行。
func (m *Metrics) CompareFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CompareRuns.WithLabelValues(status).Inc()
	m.CompareDuration.Observe(elapsed.Seconds())
}
