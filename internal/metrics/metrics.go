package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ctxkit"

var (
	// ComposeLatency labels: outcome (loaded, empty, error).
	ComposeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "compose",
		Name:      "latency_seconds",
		Help:      "Context composition latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	ComposeTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "compose",
		Name:      "section_tokens",
		Help:      "Estimated tokens used by composed sections",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
	})

	// SelectorFallbacks labels: stage (packs, artifacts), reason (unavailable, parse, disabled).
	SelectorFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "selector",
		Name:      "fallbacks_total",
		Help:      "Relevance selections that fell back to the heuristic",
	}, []string{"stage", "reason"})

	// EmbedCacheLookups labels: layer (lru, db), result (hit, miss).
	EmbedCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embed_cache",
		Name:      "lookups_total",
		Help:      "Embedding cache lookups",
	}, []string{"layer", "result"})

	IndexBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "builds_total",
		Help:      "Embedding index builds by status",
	}, []string{"status"})

	IndexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "entries",
		Help:      "Entries in the published embedding index",
	})

	// DriftResults labels: level (identical, compatible, breaking, unknown, error).
	DriftResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "drift",
		Name:      "results_total",
		Help:      "Pack compatibility results by level",
	}, []string{"level"})

	// JobRuns labels: job, status (ok, failed, skipped).
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schedule",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by outcome",
	}, []string{"job", "status"})

	// ProviderFailures labels: kind (embed, generate), provider.
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "provider_failures_total",
		Help:      "AI provider calls that failed and fell through the chain",
	}, []string{"kind", "provider"})
)
