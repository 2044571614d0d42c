package progress_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kiranshivaraju/sitegen/internal/progress"
	"github.com/kiranshivaraju/sitegen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, obs progress.Observer) (*progress.Tracker, *progress.ControlRouter) {
	t.Helper()
	tr := newTracker(t, progress.Options{ThrottleWindow: time.Hour, Observer: obs})
	return tr, progress.NewControlRouter(tr)
}

func TestControl_SubscribeKnownJob(t *testing.T) {
	tr, router := newRouter(t, nil)
	tr.CreateJob("j1", repoURL, models.JobConfig{})
	conn := &fakeConn{}

	router.HandleMessage(conn, []byte(`{"type":"subscribe","jobId":"j1"}`))

	frames := conn.decoded(t)
	require.Len(t, frames, 2)
	assert.Equal(t, models.MessageProgress, frames[0].Type)
	assert.Equal(t, "j1", snapshotOf(t, frames[0]).JobID)
	assert.Equal(t, models.MessageSubscription, frames[1].Type)
	require.NotNil(t, frames[1].Success)
	assert.True(t, *frames[1].Success)
	assert.Equal(t, "j1", frames[1].JobID)
	assert.Equal(t, 1, tr.Subscribers("j1"))
}

func TestControl_SubscribeUnknownJob(t *testing.T) {
	tr, router := newRouter(t, nil)
	conn := &fakeConn{}

	router.HandleMessage(conn, []byte(`{"type":"subscribe","jobId":"nope"}`))

	frames := conn.decoded(t)
	require.Len(t, frames, 1, "no initial snapshot for an unknown job")
	assert.Equal(t, models.MessageSubscription, frames[0].Type)
	assert.False(t, *frames[0].Success)
	assert.Equal(t, 0, tr.Subscribers("nope"))
}

func TestControl_GetStatus(t *testing.T) {
	tr, router := newRouter(t, nil)
	tr.CreateJob("j1", repoURL, models.JobConfig{})
	tr.UpdateProgress("j1", models.ProgressUpdate{Progress: intPtr(33)})
	conn := &fakeConn{}

	router.HandleMessage(conn, []byte(`{"type":"getStatus","jobId":"j1"}`))

	frames := conn.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, models.MessageStatus, frames[0].Type)
	assert.Equal(t, 33, snapshotOf(t, frames[0]).Progress, "status reads bypass the throttle")
	assert.Equal(t, 0, tr.Subscribers("j1"), "queries do not subscribe")
}

func TestControl_GetStatusUnknownJobRepliesNull(t *testing.T) {
	_, router := newRouter(t, nil)
	conn := &fakeConn{}

	router.HandleMessage(conn, []byte(`{"type":"getStatus","jobId":"nope"}`))

	require.Equal(t, 1, conn.count())
	assert.JSONEq(t, `{"type":"status","data":null}`, string(conn.frames[0]))
}

func TestControl_GetMetrics(t *testing.T) {
	tr, router := newRouter(t, nil)
	tr.CreateJob("j1", repoURL, models.JobConfig{AnalysisDepth: models.DepthDeep})
	conn := &fakeConn{}

	router.HandleMessage(conn, []byte(`{"type":"getMetrics","jobId":"j1"}`))

	frames := conn.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, models.MessageMetrics, frames[0].Type)
	var m models.JobMetrics
	require.NoError(t, json.Unmarshal(frames[0].Data, &m))
	assert.Equal(t, int64(600_000), m.EstimatedTotalMs)
}

func TestControl_GetMetricsUnknownJobRepliesNull(t *testing.T) {
	_, router := newRouter(t, nil)
	conn := &fakeConn{}

	router.HandleMessage(conn, []byte(`{"type":"getMetrics","jobId":"nope"}`))

	require.Equal(t, 1, conn.count())
	assert.JSONEq(t, `{"type":"metrics","data":null}`, string(conn.frames[0]))
}

func TestControl_DropsBadMessages(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"not json", `hello`, "malformed"},
		{"wrong shape", `[1,2,3]`, "malformed"},
		{"missing type", `{"jobId":"j1"}`, "missing_field"},
		{"missing job id", `{"type":"getStatus"}`, "missing_field"},
		{"unknown type", `{"type":"cancel","jobId":"j1"}`, "unknown_type"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obs := &recordingObserver{}
			tr, router := newRouter(t, obs)
			tr.CreateJob("j1", repoURL, models.JobConfig{})
			conn := &fakeConn{}

			assert.NotPanics(t, func() { router.HandleMessage(conn, []byte(tc.raw)) })
			assert.Equal(t, 0, conn.count())
			assert.Equal(t, []string{tc.reason}, obs.dropped)
		})
	}
}

func TestControl_FailedReplyUnsubscribes(t *testing.T) {
	tr, router := newRouter(t, nil)
	tr.CreateJob("j1", repoURL, models.JobConfig{})
	conn := &fakeConn{}
	router.HandleMessage(conn, []byte(`{"type":"subscribe","jobId":"j1"}`))
	require.Equal(t, 1, tr.Subscribers("j1"))

	conn.fail(progress.ErrConnClosed)
	router.HandleMessage(conn, []byte(`{"type":"getStatus","jobId":"j1"}`))

	assert.Equal(t, 0, tr.Subscribers("j1"))
}

func TestControl_Disconnect(t *testing.T) {
	tr, router := newRouter(t, nil)
	tr.CreateJob("a", repoURL, models.JobConfig{})
	tr.CreateJob("b", repoURL, models.JobConfig{})
	conn := &fakeConn{}
	router.HandleMessage(conn, []byte(`{"type":"subscribe","jobId":"a"}`))
	router.HandleMessage(conn, []byte(`{"type":"subscribe","jobId":"b"}`))

	router.Disconnect(conn)

	assert.Equal(t, 0, tr.Subscribers("a"))
	assert.Equal(t, 0, tr.Subscribers("b"))
	assert.NotNil(t, tr.JobStatus("a"), "job state is untouched")
}
