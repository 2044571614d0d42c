package progress_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/sitegen/internal/progress"
	"github.com/kiranshivaraju/sitegen/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- fake connection ---

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type frame struct {
	Type    string          `json:"type"`
	Success *bool           `json:"success"`
	JobID   string          `json:"jobId"`
	Data    json.RawMessage `json:"data"`
}

func (c *fakeConn) decoded(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func snapshotOf(t *testing.T, f frame) models.ProgressSnapshot {
	t.Helper()
	var snap models.ProgressSnapshot
	require.NoError(t, json.Unmarshal(f.Data, &snap))
	return snap
}

// --- fake clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- recording observer ---

type recordingObserver struct {
	progress.NopObserver
	mu        sync.Mutex
	created   int
	completed int
	failed    int
	coalesced int
	pushes    int
	pruned    int
	dropped   []string
	stages    []models.Stage
}

func (o *recordingObserver) JobCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *recordingObserver) JobCompleted(success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if success {
		o.completed++
	} else {
		o.failed++
	}
}

func (o *recordingObserver) StageClosed(stage models.Stage, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) UpdateCoalesced() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.coalesced++
}

func (o *recordingObserver) Broadcast(_ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pushes++
}

func (o *recordingObserver) SubscriberPruned() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruned++
}

func (o *recordingObserver) MessageDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, reason)
}

// --- helpers ---

func intPtr(v int) *int { return &v }

func newTracker(t *testing.T, opts progress.Options) *progress.Tracker {
	t.Helper()
	tr := progress.New(opts)
	t.Cleanup(tr.Close)
	return tr
}

func openEntries(h []models.StageHistoryEntry) int {
	n := 0
	for _, e := range h {
		if e.Open() {
			n++
		}
	}
	return n
}
