package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

// AbandonedReason is recorded on runs whose approval never arrived.
const AbandonedReason = "abandoned"

// Reaper removes suspended threads that have waited longer than their TTL
// and marks their runs failed.
type Reaper struct {
	threads store.ThreadStore
	runs    store.RunStore
	ttl     time.Duration
	metrics *Metrics
}

// NewReaper creates a Reaper. A ttl <= 0 disables reaping. metrics may be nil.
func NewReaper(threads store.ThreadStore, runs store.RunStore, ttl time.Duration, metrics *Metrics) *Reaper {
	return &Reaper{threads: threads, runs: runs, ttl: ttl, metrics: metrics}
}

// Reap claims every thread created before now minus the TTL. A thread
// resumed concurrently is left to its resumer. It returns the number of
// threads reaped.
func (r *Reaper) Reap(ctx context.Context, now time.Time) (int, error) {
	if r.ttl <= 0 {
		return 0, nil
	}
	stale, err := r.threads.ListThreads(ctx, now.Add(-r.ttl))
	if err != nil {
		return 0, eris.Wrap(err, "monitoring: list stale threads")
	}

	reaped := 0
	for _, snap := range stale {
		claimed, err := r.threads.ClaimThread(ctx, snap.ThreadID)
		if errors.Is(err, store.ErrThreadNotFound) {
			continue
		}
		if err != nil {
			return reaped, eris.Wrapf(err, "monitoring: claim thread %s", snap.ThreadID)
		}
		reaped++

		err = r.runs.UpdateRun(ctx, claimed.ThreadID, model.RunStatusFailed, claimed.StageIndex, AbandonedReason)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("monitoring: failed to mark run abandoned",
				zap.String("thread_id", claimed.ThreadID),
				zap.Error(err),
			)
		}
		if r.metrics != nil {
			r.metrics.ThreadsReaped.Inc()
		}
	}
	if reaped > 0 {
		zap.L().Info("monitoring: reaped abandoned threads",
			zap.Int("count", reaped),
			zap.Duration("ttl", r.ttl),
		)
	}
	return reaped, nil
}
