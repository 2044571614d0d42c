package models

// Control message types sent by subscribers.
const (
	MessageSubscribe  = "subscribe"
	MessageGetStatus  = "getStatus"
	MessageGetMetrics = "getMetrics"
)

// Outbound message types.
const (
	MessageSubscription = "subscription"
	MessageStatus       = "status"
	MessageMetrics      = "metrics"
	MessageProgress     = "progress"
)

// ControlMessage is an inbound request from a subscriber connection.
type ControlMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// SubscriptionReply acknowledges a subscribe request.
type SubscriptionReply struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// DataMessage carries a status, metrics or progress payload. Data is encoded as
// null when the job is unknown.
type DataMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
