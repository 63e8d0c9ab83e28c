// Package metrics 定義 Prometheus 指標
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "video_engagement"

// Metrics 所有指標
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// 快取暖機
	WarmsTotal      *prometheus.CounterVec // entity
	CacheCollisions *prometheus.CounterVec // key kind
	FlushesTotal    *prometheus.CounterVec // stat, result

	// 計數器協調
	VersionConflicts           *prometheus.CounterVec // operation
	CompensationsTotal         *prometheus.CounterVec // operation, result
	UnrecoveredInconsistencies *prometheus.CounterVec // operation
	LikeTogglesTotal           *prometheus.CounterVec // state
	CommentRelocationsTotal    *prometheus.CounterVec // direction

	// 最近影片索引
	RecentIndexOps *prometheus.CounterVec // op

	// 佇列
	QueueMessagesTotal *prometheus.CounterVec // subject, result
}

// New 建立並註冊指標；reg 為 nil 時使用預設註冊器
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		WarmsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_warms_total",
				Help:      "Cache warm-ups from the document store",
			},
			[]string{"entity"},
		),
		CacheCollisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_collisions_total",
				Help:      "Warm writes that found the key already populated",
			},
			[]string{"kind"},
		),
		FlushesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_flushes_total",
				Help:      "Cache counter write-backs to the document store",
			},
			[]string{"stat", "result"},
		),
		VersionConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_conflicts_total",
				Help:      "Optimistic version conflicts surfaced to callers",
			},
			[]string{"operation"},
		),
		CompensationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Counter compensations after a failed dependent write",
			},
			[]string{"operation", "result"},
		),
		UnrecoveredInconsistencies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unrecovered_inconsistencies_total",
				Help:      "Compensations that gave up and left a counter wrong",
			},
			[]string{"operation"},
		),
		LikeTogglesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "like_toggles_total",
				Help:      "Like toggles by resulting state",
			},
			[]string{"state"},
		),
		CommentRelocationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comment_relocations_total",
				Help:      "Comments moved between the embedded list and overflow",
			},
			[]string{"direction"},
		),
		RecentIndexOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recent_index_ops_total",
				Help:      "Recent videos index operations",
			},
			[]string{"op"},
		),
		QueueMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_messages_total",
				Help:      "Queue messages handled",
			},
			[]string{"subject", "result"},
		),
	}
}

// NewNop 每次都使用新的註冊器，測試可重複建立
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
