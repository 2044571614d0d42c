package progress

import "time"

// pendingBroadcast is the single scheduled broadcast a job may have. The
// pointer identity lets a fired callback detect that it was superseded.
type pendingBroadcast struct {
	timer *time.Timer
}

// scheduleBroadcastLocked implements a trailing-edge debounce: any pending
// broadcast for id is cancelled and a new one is armed a full window from now.
func (t *Tracker) scheduleBroadcastLocked(id string) {
	if t.cancelPendingLocked(id) {
		t.obs.UpdateCoalesced()
	}
	p := &pendingBroadcast{}
	p.timer = time.AfterFunc(t.throttle, func() { t.fireBroadcast(id, p) })
	t.pending[id] = p
}

func (t *Tracker) cancelPendingLocked(id string) bool {
	p, ok := t.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(t.pending, id)
	return true
}

func (t *Tracker) fireBroadcast(id string, p *pendingBroadcast) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Rescheduled or flushed while this callback was waiting on the lock.
	if t.pending[id] != p {
		return
	}
	delete(t.pending, id)
	t.broadcastLocked(id)
}
