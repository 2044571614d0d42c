package progress

import (
	"time"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

// onScheduleSlack is the tolerance applied to the expected elapsed time.
const onScheduleSlack = 1.2

var depthEstimates = map[string]time.Duration{
	models.DepthShallow: 60 * time.Second,
	models.DepthMedium:  180 * time.Second,
	models.DepthDeep:    600 * time.Second,
}

func baseEstimate(depth string) time.Duration {
	if d, ok := depthEstimates[depth]; ok {
		return d
	}
	return depthEstimates[models.DepthMedium]
}

// refinedEstimate scales the depth seed by repository size, from 1x for an
// empty repository up to 2x once fileCount reaches the configured maximum.
func refinedEstimate(cfg models.JobConfig, fileCount int) time.Duration {
	base := baseEstimate(cfg.AnalysisDepth)
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = models.DefaultJobConfig().MaxFiles
	}
	files := max(0, min(fileCount, maxFiles))
	scale := 1 + float64(files)/float64(maxFiles)
	return time.Duration(float64(base) * scale)
}

// estimateCompletion extrapolates linearly from the observed progress rate.
// It is recomputed on every call so it always reflects the latest update.
func (j *job) estimateCompletion(now time.Time) time.Time {
	if j.progress <= 0 {
		return j.createdAt.Add(j.estimated)
	}
	elapsed := now.Sub(j.createdAt)
	if elapsed <= 0 || j.progress >= 100 {
		return now
	}
	rate := float64(j.progress) / elapsed.Seconds()
	remaining := float64(100-j.progress) / rate
	return now.Add(time.Duration(remaining * float64(time.Second)))
}

func (j *job) metrics(now time.Time) models.JobMetrics {
	elapsed := now.Sub(j.createdAt)

	var rate float64
	if elapsed > 0 {
		rate = float64(j.progress) / elapsed.Seconds()
	}

	var closed, succeeded int
	var total time.Duration
	for _, e := range j.history {
		if e.Open() {
			continue
		}
		closed++
		total += e.Duration()
		if e.Success {
			succeeded++
		}
	}
	var avg time.Duration
	if closed > 0 {
		avg = total / time.Duration(closed)
	}

	expected := float64(j.estimated) * float64(j.progress) / 100
	return models.JobMetrics{
		JobID:                j.id,
		ElapsedMs:            elapsed.Milliseconds(),
		EstimatedTotalMs:     j.estimated.Milliseconds(),
		ProgressRate:         rate,
		StagesCompleted:      succeeded,
		AverageStageDuration: avg.Milliseconds(),
		OnSchedule:           float64(elapsed) <= onScheduleSlack*expected,
	}
}
