package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

// mockSource implements Source for testing.
type mockSource struct {
	runs      []model.PipelineRun
	threads   []model.ThreadSnapshot
	prospects int
	listErr   error
	threadErr error
}

func (m *mockSource) ListRuns(_ context.Context, filter store.RunFilter) ([]model.PipelineRun, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.PipelineRun
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockSource) ListThreads(_ context.Context, olderThan time.Time) ([]model.ThreadSnapshot, error) {
	if m.threadErr != nil {
		return nil, m.threadErr
	}
	var out []model.ThreadSnapshot
	for _, th := range m.threads {
		if th.CreatedAt.Before(olderThan) {
			out = append(out, th)
		}
	}
	return out, nil
}

func (m *mockSource) ListProspects(context.Context, store.ProspectFilter) ([]model.Prospect, int, error) {
	return nil, m.prospects, nil
}

func TestCollector_Collect(t *testing.T) {
	now := time.Now().UTC()
	src := &mockSource{
		runs: []model.PipelineRun{
			{ID: "r1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "r2", Status: model.RunStatusComplete, CreatedAt: now.Add(-2 * time.Hour)},
			{ID: "r3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour)},
			{ID: "r4", Status: model.RunStatusRunning, CreatedAt: now.Add(-10 * time.Minute)},
			{ID: "r5", Status: model.RunStatusWaitingApproval, CreatedAt: now.Add(-30 * time.Minute)},
			{ID: "old", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
		threads: []model.ThreadSnapshot{
			{ThreadID: "r5", CreatedAt: now.Add(-30 * time.Minute)},
			{ThreadID: "x", CreatedAt: now.Add(-72 * time.Hour)},
		},
		prospects: 42,
	}

	snap, err := NewCollector(src).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsWaiting)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.Equal(t, 2, snap.WaitingThreads)
	assert.Equal(t, 42, snap.ProspectsTotal)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := NewCollector(&mockSource{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
}

func TestCollector_Collect_Errors(t *testing.T) {
	_, err := NewCollector(&mockSource{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "list runs")

	_, err = NewCollector(&mockSource{threadErr: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "list threads")
}
