// Package metrics 定义排序缓存引擎的 Prometheus 指标。
//
// 指标统一以 dropfeed_ 为前缀，通过 promauto 注册到默认 Registry，
// 由 server 在 /metrics 暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchRuns 统计批处理运行次数
	// Labels: trigger (manual, onboarding_completed, scheduled), status (ok, failed, canceled)
	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropfeed_batch_runs_total",
			Help: "Total number of ranking batch runs",
		},
		[]string{"trigger", "status"},
	)

	// UserOutcomes 统计单用户运行结果
	// Labels: outcome (preserved, regenerated, restored, empty, failed, skipped)
	UserOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropfeed_user_outcomes_total",
			Help: "Per-user ranking outcomes",
		},
		[]string{"outcome"},
	)

	// UserRunDuration 单用户运行耗时
	UserRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dropfeed_user_run_duration_seconds",
			Help:    "Duration of a single user's ranking run",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// CandidatesDropped 统计被丢弃的候选
	// Labels: reason (scoring, filter, source_cap, malformed)
	CandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropfeed_candidates_dropped_total",
			Help: "Candidates dropped before selection",
		},
		[]string{"reason"},
	)

	// FeedbackLookupFailures 反馈分查询失败次数（按 0 处理）
	FeedbackLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropfeed_feedback_lookup_failures_total",
			Help: "Feedback affinity lookups that failed and defaulted to zero",
		},
	)

	// CacheEntriesWritten 写入的缓存条数（不含恢复写入）
	CacheEntriesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropfeed_cache_entries_written_total",
			Help: "Cache rows written by regenerations",
		},
	)

	// CacheRestores 备份恢复次数
	CacheRestores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropfeed_cache_restores_total",
			Help: "Times a user's previous cache was restored after a failed or empty regeneration",
		},
	)

	// BreakerState 熔断器状态：0=closed, 1=half-open, 2=open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dropfeed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
