// Package progress tracks long-running site generation jobs and pushes
// throttled progress snapshots to subscribed connections.
//
// A Tracker owns every piece of mutable state: the job records, the subscriber
// sets, the pending broadcast timers and the retention timers. All of it is
// guarded by a single mutex, and timer callbacks re-enter through that mutex,
// so updates and broadcasts for one job are applied strictly in call order.
package progress

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

const (
	DefaultThrottleWindow  = 500 * time.Millisecond
	DefaultRetentionWindow = 30 * time.Second
)

// Options configures a Tracker. Zero values fall back to the defaults.
type Options struct {
	ThrottleWindow  time.Duration
	RetentionWindow time.Duration
	Observer        Observer
	Now             func() time.Time
}

type job struct {
	id          string
	sourceRef   string
	config      models.JobConfig
	stage       models.Stage
	progress    int
	message     string
	details     map[string]any
	createdAt   time.Time
	estimated   time.Duration
	history     []models.StageHistoryEntry
	completedAt *time.Time
}

// Tracker is the job record store and broadcast hub. Construct one per process
// with New and share it between producers and the subscriber transport.
type Tracker struct {
	mu          sync.Mutex
	jobs        map[string]*job
	subscribers map[string]map[Conn]struct{}
	pending     map[string]*pendingBroadcast
	expiry      map[string]*expiryTimer
	subCount    int

	throttle  time.Duration
	retention time.Duration
	obs       Observer
	now       func() time.Time
}

// New creates a Tracker.
func New(opts Options) *Tracker {
	t := &Tracker{
		jobs:        make(map[string]*job),
		subscribers: make(map[string]map[Conn]struct{}),
		pending:     make(map[string]*pendingBroadcast),
		expiry:      make(map[string]*expiryTimer),
		throttle:    opts.ThrottleWindow,
		retention:   opts.RetentionWindow,
		obs:         opts.Observer,
		now:         opts.Now,
	}
	if t.throttle <= 0 {
		t.throttle = DefaultThrottleWindow
	}
	if t.retention <= 0 {
		t.retention = DefaultRetentionWindow
	}
	if t.obs == nil {
		t.obs = NopObserver{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// CreateJob registers a job and opens its initializing stage. An existing job
// with the same id is replaced; subscribers of that id stay attached.
func (t *Tracker) CreateJob(id, sourceRef string, cfg models.JobConfig) models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[id]; exists {
		slog.Info("replacing existing job", "job_id", id)
		t.cancelExpiryLocked(id)
	}

	cfg = withConfigDefaults(cfg)
	now := t.now()
	j := &job{
		id:        id,
		sourceRef: sourceRef,
		config:    cfg,
		stage:     models.StageInitializing,
		message:   "Job created",
		createdAt: now,
		estimated: baseEstimate(cfg.AnalysisDepth),
	}
	j.openStage(models.StageInitializing, now)
	t.jobs[id] = j

	t.obs.JobCreated()
	t.obs.JobsActive(len(t.jobs))
	slog.Info("job created",
		"job_id", id,
		"source", sourceRef,
		"depth", cfg.AnalysisDepth,
		"estimated_ms", j.estimated.Milliseconds(),
	)

	return t.snapshotLocked(j, now)
}

// UpdateProgress applies a partial update and schedules a throttled broadcast.
// It returns false, after logging a warning, when the job is unknown.
func (t *Tracker) UpdateProgress(id string, u models.ProgressUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		slog.Warn("progress update for unknown job", "job_id", id)
		return false
	}
	if j.completedAt != nil {
		slog.Warn("progress update after completion", "job_id", id, "stage", u.Stage)
	}

	now := t.now()
	if u.Stage != "" && u.Stage != j.stage {
		if regresses(j.stage, u.Stage) {
			slog.Warn("stage regression", "job_id", id, "from", j.stage, "to", u.Stage)
		}
		t.transitionLocked(j, u.Stage, now)
	}
	if u.Progress != nil {
		j.progress = clampProgress(*u.Progress)
	}
	if u.Message != "" {
		j.message = u.Message
	}
	if u.Details != nil {
		j.details = maps.Clone(u.Details)
	}

	t.scheduleBroadcastLocked(id)
	return true
}

// CompleteJob moves the job to its terminal stage, broadcasts immediately and
// schedules the record for deletion once the retention window has passed.
func (t *Tracker) CompleteJob(id string, success bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		slog.Warn("completion for unknown job", "job_id", id)
		return false
	}

	now := t.now()
	final := models.StageComplete
	j.message = "Site generation complete"
	if !success {
		final = models.StageError
		j.message = "Site generation failed"
	}
	if j.stage != final {
		t.transitionLocked(j, final, now)
	}
	if closed, ok := j.closeOpen(now, success); ok {
		t.obs.StageClosed(closed.Stage, closed.Duration())
	}
	j.progress = 100
	j.completedAt = &now

	t.cancelPendingLocked(id)
	t.broadcastLocked(id)
	t.scheduleExpiryLocked(id)

	t.obs.JobCompleted(success, now.Sub(j.createdAt))
	slog.Info("job completed",
		"job_id", id,
		"success", success,
		"elapsed_ms", now.Sub(j.createdAt).Milliseconds(),
	)
	return true
}

// RefineEstimate rescales the job's estimated duration using the number of
// files the producer observed in the repository.
func (t *Tracker) RefineEstimate(id string, fileCount int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		slog.Warn("estimate refinement for unknown job", "job_id", id)
		return false
	}
	j.estimated = refinedEstimate(j.config, fileCount)
	slog.Debug("estimate refined", "job_id", id, "files", fileCount, "estimated_ms", j.estimated.Milliseconds())
	return true
}

// JobStatus returns the current snapshot of a job, or nil if it does not exist.
func (t *Tracker) JobStatus(id string) *models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return nil
	}
	snap := t.snapshotLocked(j, t.now())
	return &snap
}

// JobHistory returns a copy of the job's stage history.
func (t *Tracker) JobHistory(id string) ([]models.StageHistoryEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	out := make([]models.StageHistoryEntry, len(j.history))
	copy(out, j.history)
	return out, true
}

// JobMetrics derives throughput metrics for a job, or returns nil if it does not exist.
func (t *Tracker) JobMetrics(id string) *models.JobMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return nil
	}
	m := j.metrics(t.now())
	return &m
}

// ActiveJobs returns the number of job records currently held, including
// completed jobs still inside their retention window.
func (t *Tracker) ActiveJobs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Close stops every pending timer. Job records are left in place.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.pending {
		t.cancelPendingLocked(id)
	}
	for id := range t.expiry {
		t.cancelExpiryLocked(id)
	}
}

func (t *Tracker) transitionLocked(j *job, next models.Stage, now time.Time) {
	if closed, ok := j.transition(next, now); ok {
		t.obs.StageClosed(closed.Stage, closed.Duration())
	}
	slog.Debug("stage transition", "job_id", j.id, "stage", next)
}

func (t *Tracker) snapshotLocked(j *job, now time.Time) models.ProgressSnapshot {
	return models.ProgressSnapshot{
		JobID:               j.id,
		Stage:               j.stage,
		Progress:            j.progress,
		Message:             j.message,
		StartTime:           j.createdAt,
		CurrentTime:         now,
		EstimatedCompletion: j.estimateCompletion(now),
		Details:             maps.Clone(j.details),
	}
}

func clampProgress(v int) int {
	return max(0, min(100, v))
}

func withConfigDefaults(cfg models.JobConfig) models.JobConfig {
	def := models.DefaultJobConfig()
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	if cfg.AnalysisDepth == "" {
		cfg.AnalysisDepth = def.AnalysisDepth
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = def.TimeoutMs
	}
	return cfg
}
