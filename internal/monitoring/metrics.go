package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments shared by the executor, outreach
// and the background checker.
type Metrics struct {
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    *prometheus.CounterVec
	RunsSuspended *prometheus.CounterVec
	CacheHits     prometheus.Counter
	StageDuration *prometheus.HistogramVec
	ThreadsReaped prometheus.Counter
	EmailsSent    *prometheus.CounterVec
}

// NewMetrics registers the instruments with reg. Each process or test owns
// its registry, so constructing twice never collides.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "runs_started_total",
			Help:      "Pipeline runs started, excluding cache hits.",
		}),
		RunsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "runs_completed_total",
			Help:      "Pipeline runs that reached the end of the registry.",
		}),
		RunsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "runs_failed_total",
			Help:      "Pipeline runs that ended in failure, by stage.",
		}, []string{"stage"}),
		RunsSuspended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "runs_suspended_total",
			Help:      "Suspensions at approval gates, by gate.",
		}, []string{"gate"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "cache_hits_total",
			Help:      "Searches answered from the result cache.",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "brands",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		ThreadsReaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "threads_reaped_total",
			Help:      "Suspended threads removed after exceeding their TTL.",
		}),
		EmailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brands",
			Name:      "emails_total",
			Help:      "Outreach emails attempted, by source and status.",
		}, []string{"source", "status"}),
	}
}
