package models

import (
	"time"
)

// Stage is a named phase of a site generation run.
type Stage string

const (
	StageInitializing      Stage = "initializing"
	StageRepositoryScan    Stage = "repository_scan"
	StageFileAnalysis      Stage = "file_analysis"
	StageAIProcessing      Stage = "ai_processing"
	StageContentGeneration Stage = "content_generation"
	StageVisualGeneration  Stage = "visual_generation"
	StageSiteAssembly      Stage = "site_assembly"
	StageOptimization      Stage = "optimization"
	StageFinalization      Stage = "finalization"
	StageComplete          Stage = "complete"
	StageError             Stage = "error"
)

// PipelineStages lists the stages in the order a well-behaved producer visits them.
// The tracker does not enforce this order.
var PipelineStages = []Stage{
	StageInitializing,
	StageRepositoryScan,
	StageFileAnalysis,
	StageAIProcessing,
	StageContentGeneration,
	StageVisualGeneration,
	StageSiteAssembly,
	StageOptimization,
	StageFinalization,
	StageComplete,
}

// Terminal reports whether no further transitions are expected after s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Known reports whether s is one of the defined stages.
func (s Stage) Known() bool {
	if s == StageError {
		return true
	}
	for _, st := range PipelineStages {
		if st == s {
			return true
		}
	}
	return false
}

const (
	DepthShallow = "shallow"
	DepthMedium  = "medium"
	DepthDeep    = "deep"
)

// JobConfig is supplied by the producer when a job is created.
type JobConfig struct {
	MaxFiles      int    `json:"maxFiles"`
	AnalysisDepth string `json:"analysisDepth"`
	EnableVisuals bool   `json:"enableVisuals"`
	EnableAI      bool   `json:"enableAI"`
	TimeoutMs     int64  `json:"timeoutMs"`
}

// DefaultJobConfig returns the configuration applied when a producer omits one.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		MaxFiles:      1000,
		AnalysisDepth: DepthMedium,
		EnableVisuals: true,
		EnableAI:      true,
		TimeoutMs:     300_000,
	}
}

// Timeout returns TimeoutMs as a duration.
func (c JobConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ProgressUpdate is a partial update sent by a producer. Zero values mean "unchanged":
// an empty Stage keeps the current stage, a nil Progress keeps the current percentage,
// an empty Message keeps the last message and nil Details keeps the last details.
type ProgressUpdate struct {
	Stage    Stage          `json:"stage,omitempty"`
	Progress *int           `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// StageHistoryEntry records one stage occupied by a job. End and Duration are
// unset while the stage is active; Success is only meaningful once closed.
type StageHistoryEntry struct {
	Stage      Stage      `json:"stage"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
	Success    bool       `json:"success"`
}

// Open reports whether the entry has not been closed yet.
func (e StageHistoryEntry) Open() bool {
	return e.EndTime == nil
}

// Duration returns the closed duration of the entry, or zero while it is open.
func (e StageHistoryEntry) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

// ProgressSnapshot is an immutable point-in-time projection of a job.
type ProgressSnapshot struct {
	JobID               string         `json:"jobId"`
	Stage               Stage          `json:"stage"`
	Progress            int            `json:"progress"`
	Message             string         `json:"message"`
	StartTime           time.Time      `json:"startTime"`
	CurrentTime         time.Time      `json:"currentTime"`
	EstimatedCompletion time.Time      `json:"estimatedCompletion"`
	Details             map[string]any `json:"details,omitempty"`
}

// JobMetrics are throughput figures derived on demand from a job's state.
// Durations are expressed in milliseconds, ProgressRate in percent per second.
type JobMetrics struct {
	JobID                string  `json:"jobId"`
	ElapsedMs            int64   `json:"elapsedTime"`
	EstimatedTotalMs     int64   `json:"estimatedTotal"`
	ProgressRate         float64 `json:"progressRate"`
	StagesCompleted      int     `json:"stagesCompleted"`
	AverageStageDuration int64   `json:"averageStageDuration"`
	OnSchedule           bool    `json:"isOnSchedule"`
}
