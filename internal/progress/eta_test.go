package progress_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/sitegen/internal/progress"
	"github.com/kiranshivaraju/sitegen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETA_NoProgressUsesDepthEstimate(t *testing.T) {
	tests := []struct {
		depth string
		want  time.Duration
	}{
		{models.DepthShallow, 60 * time.Second},
		{models.DepthMedium, 180 * time.Second},
		{models.DepthDeep, 600 * time.Second},
		{"", 180 * time.Second},
		{"bogus", 180 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.depth, func(t *testing.T) {
			clock := newFakeClock()
			tr := newTracker(t, progress.Options{Now: clock.Now})
			start := clock.Now()

			tr.CreateJob("j1", repoURL, models.JobConfig{AnalysisDepth: tc.depth})
			clock.Advance(10 * time.Second)

			snap := tr.JobStatus("j1")
			assert.Equal(t, start.Add(tc.want), snap.EstimatedCompletion)
		})
	}
}

func TestETA_LinearExtrapolation(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(t, progress.Options{Now: clock.Now, ThrottleWindow: time.Hour})

	tr.CreateJob("j1", repoURL, models.JobConfig{})
	clock.Advance(30 * time.Second)
	tr.UpdateProgress("j1", models.ProgressUpdate{Progress: intPtr(25)})

	// 25% in 30s: 75% remaining at the same rate takes 90s.
	snap := tr.JobStatus("j1")
	assert.WithinDuration(t, clock.Now().Add(90*time.Second), snap.EstimatedCompletion, time.Millisecond)

	clock.Advance(30 * time.Second)
	tr.UpdateProgress("j1", models.ProgressUpdate{Progress: intPtr(75)})

	// 75% in 60s: 25% remaining takes 20s.
	snap = tr.JobStatus("j1")
	assert.WithinDuration(t, clock.Now().Add(20*time.Second), snap.EstimatedCompletion, time.Millisecond)
}

func TestMetrics_DerivedFields(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(t, progress.Options{Now: clock.Now, ThrottleWindow: time.Hour})

	tr.CreateJob("j1", repoURL, models.JobConfig{AnalysisDepth: models.DepthMedium})
	clock.Advance(10 * time.Second)
	tr.UpdateProgress("j1", models.ProgressUpdate{Stage: models.StageRepositoryScan})
	clock.Advance(20 * time.Second)
	tr.UpdateProgress("j1", models.ProgressUpdate{Stage: models.StageFileAnalysis, Progress: intPtr(25)})

	m := tr.JobMetrics("j1")
	require.NotNil(t, m)
	assert.Equal(t, "j1", m.JobID)
	assert.Equal(t, int64(30_000), m.ElapsedMs)
	assert.Equal(t, int64(180_000), m.EstimatedTotalMs)
	assert.InDelta(t, 25.0/30.0, m.ProgressRate, 1e-9)
	assert.Equal(t, 2, m.StagesCompleted)
	assert.Equal(t, int64(15_000), m.AverageStageDuration)
	// Expected elapsed at 25% is 45s; 30s is within the 20% slack.
	assert.True(t, m.OnSchedule)

	clock.Advance(30 * time.Second)
	m = tr.JobMetrics("j1")
	// 60s > 1.2 * 45s
	assert.False(t, m.OnSchedule)
}

func TestMetrics_NoClosedStages(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(t, progress.Options{Now: clock.Now})

	tr.CreateJob("j1", repoURL, models.JobConfig{})
	m := tr.JobMetrics("j1")
	require.NotNil(t, m)
	assert.Equal(t, 0, m.StagesCompleted)
	assert.Equal(t, int64(0), m.AverageStageDuration)
	assert.Equal(t, 0.0, m.ProgressRate)
}

func TestMetrics_UnknownJob(t *testing.T) {
	tr := newTracker(t, progress.Options{})
	assert.Nil(t, tr.JobMetrics("missing"))
}

func TestRefineEstimate_ScalesWithRepositorySize(t *testing.T) {
	tests := []struct {
		name     string
		cfg      models.JobConfig
		files    int
		expected time.Duration
	}{
		{"empty repo keeps seed", models.JobConfig{AnalysisDepth: models.DepthDeep, MaxFiles: 1000}, 0, 600 * time.Second},
		{"half of max", models.JobConfig{AnalysisDepth: models.DepthDeep, MaxFiles: 1000}, 500, 900 * time.Second},
		{"capped at max files", models.JobConfig{AnalysisDepth: models.DepthShallow, MaxFiles: 200}, 5000, 120 * time.Second},
		{"negative count", models.JobConfig{AnalysisDepth: models.DepthShallow}, -3, 60 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTracker(t, progress.Options{})
			tr.CreateJob("j1", repoURL, tc.cfg)

			require.True(t, tr.RefineEstimate("j1", tc.files))
			assert.Equal(t, tc.expected.Milliseconds(), tr.JobMetrics("j1").EstimatedTotalMs)
		})
	}
}

func TestRefineEstimate_UnknownJob(t *testing.T) {
	tr := newTracker(t, progress.Options{})
	assert.False(t, tr.RefineEstimate("missing", 10))
}
