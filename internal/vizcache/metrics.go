package vizcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the cache and orchestrator counters exposed on the debug API.
type Metrics struct {
	// Fetches issued per kind, and their outcome once applied.
	Fetches       *prometheus.CounterVec
	FetchOutcomes *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// Ensure calls answered without a fetch.
	Hits *prometheus.CounterVec

	// Completions dropped by the generation check.
	StaleDiscards prometheus.Counter

	// Handle lifecycle.
	Evictions   prometheus.Counter
	LiveHandles prometheus.Gauge
	SpoolBytes  prometheus.Gauge
}

// NewMetrics registers the counters on reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Fetches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loadlens_fetches_total",
			Help: "Fetches issued per visualization kind.",
		}, []string{"kind"}),

		FetchOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loadlens_fetch_outcomes_total",
			Help: "Applied fetch results per kind and status.",
		}, []string{"kind", "status"}),

		FetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loadlens_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		Hits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loadlens_cache_hits_total",
			Help: "Ensure calls served from a ready or loading slot.",
		}, []string{"kind"}),

		StaleDiscards: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loadlens_stale_discards_total",
			Help: "Completions discarded because a newer generation was issued.",
		}),

		Evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loadlens_cache_evictions_total",
			Help: "Entries evicted or replaced.",
		}),

		LiveHandles: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "loadlens_live_handles",
			Help: "Resource handles currently held by the cache.",
		}),

		SpoolBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "loadlens_spool_bytes",
			Help: "Bytes of chart images currently spooled.",
		}),
	}
}
