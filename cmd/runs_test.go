package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.PipelineRun{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			City:       "London",
			StageIndex: 6,
			Status:     model.RunStatusComplete,
			CreatedAt:  now,
			UpdatedAt:  now.Add(2 * time.Minute),
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			City:       "Porto",
			StageIndex: 2,
			Status:     model.RunStatusWaitingApproval,
			CreatedAt:  now.Add(-1 * time.Hour),
			UpdatedAt:  now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "CITY")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "London")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "Porto")
	assert.Contains(t, output, "waiting_approval")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.PipelineRun{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			City:      "Atlantis",
			Status:    model.RunStatusFailed,
			Error:     "no candidate websites found for Atlantis after trying every search query",
			CreatedAt: now,
			UpdatedAt: now.Add(30 * time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "Atlantis")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "no candidate websites found for Atlan...")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{
		RunsTotal:      4,
		RunsWaiting:    1,
		RunsComplete:   2,
		RunsFailed:     1,
		FailRate:       1.0 / 3,
		WaitingThreads: 1,
		ProspectsTotal: 12,
		LookbackHours:  24,
	})

	output := buf.String()
	assert.Contains(t, output, "Window:")
	assert.Contains(t, output, "24h")
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Failure rate:")
	assert.Contains(t, output, "33.3%")
	assert.Contains(t, output, "Prospects:")
	assert.Contains(t, output, "12")
}

func TestFormatRunStats_NoFinishedRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{RunsTotal: 1, RunsRunning: 1, LookbackHours: 1})
	assert.NotContains(t, buf.String(), "Failure rate:")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
