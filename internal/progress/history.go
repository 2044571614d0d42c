package progress

import (
	"slices"
	"time"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

func (j *job) openStage(stage models.Stage, now time.Time) {
	j.history = append(j.history, models.StageHistoryEntry{
		Stage:     stage,
		StartTime: now,
	})
}

// closeOpen closes the last history entry if it is still open. At most one
// entry is ever open, and it is always the last one.
func (j *job) closeOpen(now time.Time, success bool) (models.StageHistoryEntry, bool) {
	if len(j.history) == 0 {
		return models.StageHistoryEntry{}, false
	}
	last := &j.history[len(j.history)-1]
	if !last.Open() {
		return models.StageHistoryEntry{}, false
	}
	end := now
	last.EndTime = &end
	last.DurationMs = end.Sub(last.StartTime).Milliseconds()
	last.Success = success
	return *last, true
}

// transition closes the active entry and opens one for next. The closed entry
// counts as successful unless the job is moving into the error stage.
func (j *job) transition(next models.Stage, now time.Time) (models.StageHistoryEntry, bool) {
	closed, ok := j.closeOpen(now, next != models.StageError)
	j.stage = next
	j.openStage(next, now)
	return closed, ok
}

// regresses reports whether moving from cur to next goes backwards in the
// canonical pipeline order. Stages outside the order never regress.
func regresses(cur, next models.Stage) bool {
	ci := slices.Index(models.PipelineStages, cur)
	ni := slices.Index(models.PipelineStages, next)
	if ci < 0 || ni < 0 {
		return false
	}
	return ni < ci
}
