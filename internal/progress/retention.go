package progress

import (
	"log/slog"
	"time"
)

type expiryTimer struct {
	timer *time.Timer
}

// scheduleExpiryLocked arms (or re-arms) deletion of a completed job after the
// retention window.
func (t *Tracker) scheduleExpiryLocked(id string) {
	t.cancelExpiryLocked(id)
	e := &expiryTimer{}
	e.timer = time.AfterFunc(t.retention, func() { t.expire(id, e) })
	t.expiry[id] = e
}

func (t *Tracker) cancelExpiryLocked(id string) {
	if e, ok := t.expiry[id]; ok {
		e.timer.Stop()
		delete(t.expiry, id)
	}
}

// expire deletes the job record. Subscribers of the id are left attached and
// simply stop receiving pushes until they disconnect.
func (t *Tracker) expire(id string, e *expiryTimer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.expiry[id] != e {
		return
	}
	delete(t.expiry, id)
	t.cancelPendingLocked(id)
	delete(t.jobs, id)

	t.obs.JobsActive(len(t.jobs))
	slog.Info("job expired", "job_id", id, "subscribers", len(t.subscribers[id]))
}
