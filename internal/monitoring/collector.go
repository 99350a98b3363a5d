package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsRunning  int     `json:"runs_running"`
	RunsWaiting  int     `json:"runs_waiting"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	FailRate     float64 `json:"fail_rate"`

	// Suspended threads regardless of age.
	WaitingThreads int `json:"waiting_threads"`
	// Threads reaped by the check that produced this snapshot.
	ThreadsReaped int `json:"threads_reaped"`

	ProspectsTotal int `json:"prospects_total"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the part of the store the collector reads.
type Source interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error)
	ListThreads(ctx context.Context, olderThan time.Time) ([]model.ThreadSnapshot, error)
	ListProspects(ctx context.Context, filter store.ProspectFilter) ([]model.Prospect, int, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src Source
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.src.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusRunning:
			snap.RunsRunning++
		case model.RunStatusWaitingApproval:
			snap.RunsWaiting++
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	threads, err := c.src.ListThreads(ctx, now.Add(time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list threads")
	}
	snap.WaitingThreads = len(threads)

	_, total, err := c.src.ListProspects(ctx, store.ProspectFilter{Limit: 1})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count prospects")
	}
	snap.ProspectsTotal = total

	return snap, nil
}
