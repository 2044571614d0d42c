// Package pipeline drives jobs through an ordered list of stages and reports
// their progress to the tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

var (
	ErrStepFailed    = errors.New("pipeline step failed")
	ErrRunnerClosed  = errors.New("pipeline runner closed")
	ErrAlreadyActive = errors.New("job already running")
	ErrNoSteps       = errors.New("pipeline has no steps")
)

// Tracker is the subset of progress.Tracker a Runner reports to.
type Tracker interface {
	CreateJob(id, sourceRef string, cfg models.JobConfig) models.ProgressSnapshot
	UpdateProgress(id string, u models.ProgressUpdate) bool
	CompleteJob(id string, success bool) bool
	RefineEstimate(id string, fileCount int) bool
}

// Step is one stage of a pipeline. Weight sets its share of the overall
// percentage; steps with a zero weight count as one.
type Step struct {
	Stage   models.Stage
	Weight  int
	Message string
	Run     func(ctx context.Context, sc *StepContext) error
}

// StepContext lets a running step report progress within its own share of
// the job.
type StepContext struct {
	tracker Tracker
	jobID   string
	base    int
	span    int
}

// JobID returns the id of the job the step belongs to.
func (sc *StepContext) JobID() string {
	return sc.jobID
}

// Progress reports how far through the step the job is. fraction is clamped
// to [0, 1]; an empty message keeps the previous one.
func (sc *StepContext) Progress(fraction float64, message string) {
	fraction = max(0, min(1, fraction))
	p := sc.base + int(fraction*float64(sc.span))
	sc.tracker.UpdateProgress(sc.jobID, models.ProgressUpdate{Progress: &p, Message: message})
}

// Details replaces the job's free-form details.
func (sc *StepContext) Details(details map[string]any) {
	sc.tracker.UpdateProgress(sc.jobID, models.ProgressUpdate{Details: details})
}

// FilesDiscovered refines the job's completion estimate from the repository size.
func (sc *StepContext) FilesDiscovered(n int) {
	sc.tracker.RefineEstimate(sc.jobID, n)
}

// Runner executes pipelines in background goroutines, one per job.
type Runner struct {
	tracker Tracker
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. Every run derives its context from ctx, so
// cancelling ctx fails all runs in flight.
func NewRunner(ctx context.Context, t Tracker) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		tracker: t,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]context.CancelFunc),
	}
}

// Start creates the job and dispatches its pipeline in a background goroutine.
// It returns the job's initial snapshot without waiting for the run.
func (r *Runner) Start(id, sourceRef string, cfg models.JobConfig, steps []Step) (models.ProgressSnapshot, error) {
	if len(steps) == 0 {
		return models.ProgressSnapshot{}, ErrNoSteps
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.ProgressSnapshot{}, ErrRunnerClosed
	}
	if _, ok := r.active[id]; ok {
		return models.ProgressSnapshot{}, fmt.Errorf("%w: %s", ErrAlreadyActive, id)
	}

	snap := r.tracker.CreateJob(id, sourceRef, cfg)

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = models.DefaultJobConfig().Timeout()
	}
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	r.active[id] = cancel

	r.wg.Add(1)
	go r.run(ctx, id, steps)

	return snap, nil
}

// Cancel aborts a running pipeline. The job completes as failed.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.active[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of pipelines currently running.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Wait blocks until every dispatched pipeline has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels all runs, waits for them to finish and rejects further Starts.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// run executes steps in order. It recovers from panics and always completes
// the job, successfully or not.
func (r *Runner) run(ctx context.Context, id string, steps []Step) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		if cancel, ok := r.active[id]; ok {
			cancel()
			delete(r.active, id)
		}
		r.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in pipeline run", "error", rec, "job_id", id)
			r.fail(id, "", fmt.Errorf("%w: panic: %v", ErrStepFailed, rec))
		}
	}()

	total := 0
	for _, st := range steps {
		total += weight(st)
	}

	done := 0
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			r.fail(id, st.Stage, err)
			return
		}

		base := done * 100 / total
		r.tracker.UpdateProgress(id, models.ProgressUpdate{
			Stage:    st.Stage,
			Progress: &base,
			Message:  st.Message,
		})

		if st.Run != nil {
			sc := &StepContext{
				tracker: r.tracker,
				jobID:   id,
				base:    base,
				span:    weight(st) * 100 / total,
			}
			if err := st.Run(ctx, sc); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				} else {
					err = fmt.Errorf("%w: %s: %w", ErrStepFailed, st.Stage, err)
				}
				r.fail(id, st.Stage, err)
				return
			}
		}
		done += weight(st)
	}

	r.tracker.CompleteJob(id, true)
	slog.Info("pipeline finished", "job_id", id, "steps", len(steps))
}

func (r *Runner) fail(id string, stage models.Stage, err error) {
	reason := "step_failed"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, context.Canceled):
		reason = "cancelled"
	}

	slog.Warn("pipeline failed", "job_id", id, "stage", stage, "reason", reason, "error", err)
	r.tracker.UpdateProgress(id, models.ProgressUpdate{Details: map[string]any{
		"error":       err.Error(),
		"reason":      reason,
		"failedStage": string(stage),
	}})
	r.tracker.CompleteJob(id, false)
}

func weight(st Step) int {
	if st.Weight <= 0 {
		return 1
	}
	return st.Weight
}
