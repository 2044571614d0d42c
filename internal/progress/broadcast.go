package progress

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("subscriber send queue full")
)

// Conn is a subscriber connection. Implementations must be comparable
// (typically a pointer) and Send must not block: a transport queues the frame
// and returns ErrConnClosed or ErrSlowConsumer when it cannot accept it. Any
// Send error removes the connection from every subscriber set it was sent from.
type Conn interface {
	Send(frame []byte) error
}

// Subscribe registers conn for pushes about job id and sends it the current
// snapshot straight away. It returns false, sending nothing, if the job does
// not exist, and false if the initial push fails.
func (t *Tracker) Subscribe(id string, conn Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		slog.Warn("subscribe to unknown job", "job_id", id)
		return false
	}

	set, ok := t.subscribers[id]
	if !ok {
		set = make(map[Conn]struct{})
		t.subscribers[id] = set
	}
	if _, dup := set[conn]; !dup {
		set[conn] = struct{}{}
		t.subCount++
		t.obs.SubscribersActive(t.subCount)
	}

	frame, err := progressFrame(t.snapshotLocked(j, t.now()))
	if err != nil {
		slog.Error("encode initial snapshot", "job_id", id, "error", err)
		return true
	}
	if err := conn.Send(frame); err != nil {
		t.removeLocked(id, conn, err)
		return false
	}
	return true
}

// Unsubscribe removes conn from every job it is subscribed to. Job state is
// never affected.
func (t *Tracker) Unsubscribe(conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, set := range t.subscribers {
		if _, ok := set[conn]; ok {
			t.removeLocked(id, conn, nil)
		}
	}
}

// Subscribers returns the number of connections subscribed to job id. The
// job itself may already have been deleted.
func (t *Tracker) Subscribers(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers[id])
}

// broadcastLocked pushes the job's current snapshot to all of its
// subscribers. A job deleted after its subscribers attached is skipped.
func (t *Tracker) broadcastLocked(id string) {
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	set := t.subscribers[id]
	if len(set) == 0 {
		return
	}

	frame, err := progressFrame(t.snapshotLocked(j, t.now()))
	if err != nil {
		slog.Error("encode progress snapshot", "job_id", id, "error", err)
		return
	}

	delivered := 0
	for conn := range set {
		if err := conn.Send(frame); err != nil {
			t.removeLocked(id, conn, err)
			continue
		}
		delivered++
	}
	t.obs.Broadcast(delivered)
}

func (t *Tracker) removeLocked(id string, conn Conn, cause error) {
	set := t.subscribers[id]
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(t.subscribers, id)
	}
	t.subCount--
	t.obs.SubscribersActive(t.subCount)
	if cause != nil {
		t.obs.SubscriberPruned()
		slog.Debug("subscriber pruned", "job_id", id, "error", cause)
	}
}

func progressFrame(snap models.ProgressSnapshot) ([]byte, error) {
	return json.Marshal(models.DataMessage{Type: models.MessageProgress, Data: snap})
}
