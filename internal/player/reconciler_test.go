package player

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/stream"
)

type reconcilerHarness struct {
	clock  *clock.Mock
	status chan statusUpdate
	sync   chan syncUpdate
	sub    *stream.Subscription[State]
}

func newReconcilerHarness(t *testing.T) *reconcilerHarness {
	h := &reconcilerHarness{
		clock:  clock.NewMock(),
		status: make(chan statusUpdate),
		sync:   make(chan syncUpdate),
	}
	rec := &reconciler{
		status:   chanSource(h.status),
		sync:     chanSource(h.sync),
		clock:    h.clock,
		interval: DefaultTickInterval,
		log:      nopLogger,
	}
	h.sub = stream.NewHub(rec.produce).Subscribe()
	t.Cleanup(h.sub.Close)
	return h
}

func playingAt(secs, totlen float64) *bluos.Status {
	return &bluos.Status{ETag: "a", State: bluos.StatePlay, Title1: "So What", Secs: num(secs), TotLen: num(totlen)}
}

// waitProgress drains snapshots until progress reaches want
func waitProgress(t *testing.T, sub *stream.Subscription[State], want float64) {
	t.Helper()
	var last State
	require.Eventually(t, func() bool {
		select {
		case s := <-sub.C():
			last = s
		default:
		}
		return last.Playback != nil && last.Playback.Progress != nil &&
			math.Abs(*last.Playback.Progress-want) < 1e-9
	}, waitFor, time.Millisecond, "progress never reached %v", want)
}

func TestReconciler_WaitsForBothInputs(t *testing.T) {
	h := newReconcilerHarness(t)

	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: playingAt(10, 100)})
	assertNoValue(t, h.sub)

	send(t, h.sync, syncUpdate{Endpoint: endpoint, Sync: &bluos.SyncStatus{Name: "Living Room"}})
	s := receive(t, h.sub)
	require.NotNil(t, s.Device)
	assert.Equal(t, "Living Room", s.Device.Name)
	assert.Equal(t, "So What", s.Playback.Song)
	assert.InDelta(t, 0.10, *s.Playback.Progress, 1e-9)
}

func TestReconciler_IgnoresSyncFromOtherEndpoint(t *testing.T) {
	h := newReconcilerHarness(t)

	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: &bluos.Status{State: bluos.StatePause}})
	send(t, h.sync, syncUpdate{Endpoint: "http://10.0.0.6:11000/", Sync: &bluos.SyncStatus{Name: "Kitchen"}})
	assertNoValue(t, h.sub)

	send(t, h.sync, syncUpdate{Endpoint: endpoint, Sync: &bluos.SyncStatus{Name: "Living Room"}})
	assert.Equal(t, "Living Room", receive(t, h.sub).Device.Name)
}

func TestReconciler_InterpolatesProgress(t *testing.T) {
	h := newReconcilerHarness(t)

	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: playingAt(10, 100)})
	send(t, h.sync, syncUpdate{Endpoint: endpoint, Sync: &bluos.SyncStatus{Name: "Living Room"}})
	waitProgress(t, h.sub, 0.10)

	h.clock.Add(500 * time.Millisecond)
	waitProgress(t, h.sub, 0.105)

	// A fresh status restarts interpolation from its own position
	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: playingAt(20, 100)})
	waitProgress(t, h.sub, 0.20)
}

func TestReconciler_HoldsWhilePaused(t *testing.T) {
	h := newReconcilerHarness(t)

	paused := &bluos.Status{State: bluos.StatePause, Secs: num(10), TotLen: num(100)}
	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: paused})
	send(t, h.sync, syncUpdate{Endpoint: endpoint, Sync: &bluos.SyncStatus{Name: "Living Room"}})
	s := receive(t, h.sub)
	assert.Equal(t, Paused, s.Playback.Status)
	assert.Equal(t, 0.0, *s.Playback.Progress)

	h.clock.Add(time.Second)
	assertNoValue(t, h.sub)
}

func TestReconciler_DropsEqualSnapshots(t *testing.T) {
	h := newReconcilerHarness(t)

	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: &bluos.Status{ETag: "a", State: bluos.StateStop}})
	send(t, h.sync, syncUpdate{Endpoint: endpoint, Sync: &bluos.SyncStatus{Name: "Living Room"}})
	receive(t, h.sub)

	// Only the etag differs, which is not part of the snapshot
	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: &bluos.Status{ETag: "b", State: bluos.StateStop}})
	assertNoValue(t, h.sub)

	send(t, h.status, statusUpdate{Endpoint: endpoint, Status: &bluos.Status{ETag: "c", State: bluos.StatePause}})
	assert.Equal(t, Paused, receive(t, h.sub).Playback.Status)
}

func TestMoving(t *testing.T) {
	assert.True(t, moving(playingAt(1, 100)))
	assert.True(t, moving(&bluos.Status{State: bluos.StateStream, Secs: num(1), TotLen: num(100)}))
	assert.False(t, moving(playingAt(1, 0)))
	assert.False(t, moving(&bluos.Status{State: bluos.StatePlay}))
	assert.False(t, moving(&bluos.Status{State: bluos.StatePause, Secs: num(1), TotLen: num(100)}))
	assert.False(t, moving(nil))
}
