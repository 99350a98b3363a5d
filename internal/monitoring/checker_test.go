package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/config"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func suspend(t *testing.T, st *store.SQLiteStore, id string, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, model.PipelineRun{ID: id, City: "london", Status: model.RunStatusWaitingApproval, StageIndex: 2}))
	require.NoError(t, st.SaveThread(ctx, model.ThreadSnapshot{
		ThreadID:   id,
		Gate:       "discovery",
		StageIndex: 2,
		State:      model.RunState{TargetCity: "London"},
		CreatedAt:  time.Now().UTC().Add(-age),
	}))
}

func TestReaper_Reap(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	suspend(t, st, "stale", 72*time.Hour)
	suspend(t, st, "fresh", time.Hour)

	metrics := NewMetrics(prometheus.NewRegistry())
	n, err := NewReaper(st, st, 48*time.Hour, metrics).Reap(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThreadsReaped))

	run, err := st.GetRun(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, AbandonedReason, run.Error)

	_, err = st.LoadThread(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrThreadNotFound)

	_, err = st.LoadThread(ctx, "fresh")
	require.NoError(t, err)
	run, err = st.GetRun(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusWaitingApproval, run.Status)
}

func TestReaper_Disabled(t *testing.T) {
	st := newSQLite(t)
	suspend(t, st, "stale", 72*time.Hour)

	n, err := NewReaper(st, st, 0, nil).Reap(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChecker_Check(t *testing.T) {
	st := newSQLite(t)
	suspend(t, st, "stale", 72*time.Hour)

	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		LookbackWindowHours:  100,
		FailureRateThreshold: 0.10,
		ThreadTTLHours:       48,
		WebhookURL:           ts.URL,
	}
	checker := NewChecker(
		NewReaper(st, st, 48*time.Hour, nil),
		NewCollector(st),
		NewAlerter(cfg),
		cfg,
	)

	snap := checker.Check(context.Background(), zap.NewNop())
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.ThreadsReaped)
	assert.Equal(t, 0, snap.WaitingThreads)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(nil, NewCollector(&mockSource{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(nil, NewCollector(&mockSource{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
