package player

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/metrics"
	"github.com/muurk/bluos/internal/stream"
)

// DefaultTickInterval is how often progress is re-interpolated while playing
const DefaultTickInterval = 10 * time.Millisecond

// reconciler merges status, sync status and a clock tick into State
// snapshots. Nothing is emitted until both a status and a sync status from
// the same endpoint are known, and consecutive equal snapshots are dropped.
type reconciler struct {
	status   stream.Source[statusUpdate]
	sync     stream.Source[syncUpdate]
	clock    clock.Clock
	interval time.Duration
	log      *zap.Logger
}

func (r *reconciler) produce(ctx context.Context, emit func(State), fail func(error)) {
	statusSub := r.status.Subscribe()
	defer statusSub.Close()
	syncSub := r.sync.Subscribe()
	defer syncSub.Close()

	var (
		status *statusUpdate
		sync   *syncUpdate
		since  time.Time
		ticker *clock.Ticker
		tick   <-chan time.Time
		last   State
		sent   bool
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	publish := func(input bool) {
		if status == nil || sync == nil || sync.Endpoint != status.Endpoint {
			return
		}
		elapsed := r.clock.Since(since).Truncate(r.interval)
		next := Normalize(status.Endpoint, status.Status, sync.Sync, elapsed)
		if sent && next.Equal(last) {
			return
		}
		if input && r.log.Core().Enabled(zap.DebugLevel) {
			r.log.Debug("state changed", zap.String("diff", last.Diff(next)))
		}
		last, sent = next, true
		metrics.StateEmissions.Inc()
		emit(next)
	}

	ended := func(err error) {
		if err != nil {
			fail(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case u, ok := <-statusSub.C():
			if !ok {
				ended(statusSub.Err())
				return
			}
			status = &u
			since = r.clock.Now()

			// Progress only moves while playing; no need to tick otherwise
			stopTicker()
			if moving(u.Status) {
				ticker = r.clock.Ticker(r.interval)
				tick = ticker.C
			}
			publish(true)

		case u, ok := <-syncSub.C():
			if !ok {
				ended(syncSub.Err())
				return
			}
			sync = &u
			publish(true)

		case <-tick:
			publish(false)
		}
	}
}

func moving(s *bluos.Status) bool {
	return s != nil && (s.State == bluos.StatePlay || s.State == bluos.StateStream) &&
		s.Secs != nil && s.TotLen != nil && *s.TotLen > 0
}
