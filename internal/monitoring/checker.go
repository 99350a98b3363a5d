package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/config"
)

// Checker runs periodic reaping and alert checks in the background.
type Checker struct {
	reaper    *Reaper
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background checker. reaper may be nil.
func NewChecker(reaper *Reaper, collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		reaper:    reaper,
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Int("thread_ttl_hours", c.cfg.ThreadTTLHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx, log)
		}
	}
}

// Check performs one reap, collect and alert cycle and returns the
// snapshot it collected, or nil when collection failed.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) *MetricsSnapshot {
	reaped := 0
	if c.reaper != nil {
		n, err := c.reaper.Reap(ctx, time.Now().UTC())
		if err != nil {
			log.Error("monitoring: reap failed", zap.Error(err))
		}
		reaped = n
	}

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}
	snap.ThreadsReaped = reaped

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return snap
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return snap
}
