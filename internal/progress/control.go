package progress

import (
	"encoding/json"
	"log/slog"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

// ControlRouter interprets control messages arriving on subscriber
// connections. Each recognised message yields exactly one reply to the
// sending connection; anything else is logged and dropped.
type ControlRouter struct {
	tracker *Tracker
}

// NewControlRouter creates a ControlRouter backed by t.
func NewControlRouter(t *Tracker) *ControlRouter {
	return &ControlRouter{tracker: t}
}

// HandleMessage dispatches one raw inbound frame from conn.
func (r *ControlRouter) HandleMessage(conn Conn, raw []byte) {
	var msg models.ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.drop("malformed", "error", err)
		return
	}
	if msg.Type == "" || msg.JobID == "" {
		r.drop("missing_field", "type", msg.Type, "job_id", msg.JobID)
		return
	}

	switch msg.Type {
	case models.MessageSubscribe:
		ok := r.tracker.Subscribe(msg.JobID, conn)
		r.reply(conn, models.SubscriptionReply{
			Type:    models.MessageSubscription,
			Success: ok,
			JobID:   msg.JobID,
		})
	case models.MessageGetStatus:
		r.reply(conn, models.DataMessage{
			Type: models.MessageStatus,
			Data: r.tracker.JobStatus(msg.JobID),
		})
	case models.MessageGetMetrics:
		r.reply(conn, models.DataMessage{
			Type: models.MessageMetrics,
			Data: r.tracker.JobMetrics(msg.JobID),
		})
	default:
		r.drop("unknown_type", "type", msg.Type, "job_id", msg.JobID)
	}
}

// Disconnect detaches conn from every subscriber set. Transports call it when
// the underlying connection closes.
func (r *ControlRouter) Disconnect(conn Conn) {
	r.tracker.Unsubscribe(conn)
}

// Dropped records a frame the transport discarded before it reached the router.
func (r *ControlRouter) Dropped(reason string) {
	r.drop(reason)
}

func (r *ControlRouter) reply(conn Conn, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode control reply", "error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		slog.Debug("control reply failed, unsubscribing", "error", err)
		r.tracker.Unsubscribe(conn)
	}
}

func (r *ControlRouter) drop(reason string, attrs ...any) {
	r.tracker.mu.Lock()
	r.tracker.obs.MessageDropped(reason)
	r.tracker.mu.Unlock()
	slog.Warn("dropping control message", append([]any{"reason", reason}, attrs...)...)
}
