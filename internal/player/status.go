package player

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/metrics"
	"github.com/muurk/bluos/internal/stream"
)

// Fetcher is the part of the player API the sync engine reads
type Fetcher interface {
	Status(ctx context.Context, etag string, wait time.Duration) (*bluos.Status, error)
	SyncStatus(ctx context.Context) (*bluos.SyncStatus, error)
}

// statusUpdate is one /Status payload and the endpoint it came from
type statusUpdate struct {
	Endpoint string
	Status   *bluos.Status
}

func statusUpdatesEqual(a, b statusUpdate) bool {
	return a.Endpoint == b.Endpoint && cmp.Equal(a.Status, b.Status)
}

// statusLoop long-polls /Status on the current endpoint. Requests are strictly
// sequential; a new endpoint cancels the running loop before the next starts.
type statusLoop struct {
	endpoints  stream.Source[string]
	fetcher    func(endpoint string) Fetcher
	wait       time.Duration
	newBackOff func() backoff.BackOff
	sleep      func(ctx context.Context, d time.Duration) error
	requery    func()
	log        *zap.Logger
}

func (l *statusLoop) produce(ctx context.Context, emit func(statusUpdate), fail func(error)) {
	sub := l.endpoints.Subscribe()
	defer sub.Close()

	var (
		cancelPoll context.CancelFunc
		pollDone   chan struct{}
	)
	stop := func() {
		if cancelPoll != nil {
			cancelPoll()
			<-pollDone
			cancelPoll = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case endpoint, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					fail(err)
				}
				return
			}
			stop()

			pctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			cancelPoll, pollDone = cancel, done
			go func() {
				defer close(done)
				l.poll(pctx, endpoint, emit)
			}()
		}
	}
}

func (l *statusLoop) poll(ctx context.Context, endpoint string, emit func(statusUpdate)) {
	log := l.log.With(zap.String("endpoint", endpoint))
	log.Debug("status loop started")

	device := l.fetcher(endpoint)
	b := backoff.WithContext(l.newBackOff(), ctx)
	etag := ""

	for {
		status, err := device.Status(ctx, etag, l.wait)
		if ctx.Err() != nil {
			metrics.StatusPolls.WithLabelValues(metrics.ResultCancelled).Inc()
			log.Debug("status loop stopped")
			return
		}

		if err != nil {
			result := metrics.ResultError
			if bluos.IsValidationError(err) || bluos.IsParseError(err) {
				result = metrics.ResultInvalid
			}
			metrics.StatusPolls.WithLabelValues(result).Inc()

			delay := b.NextBackOff()
			if delay == backoff.Stop {
				return
			}
			metrics.BackoffDelay.Set(delay.Seconds())
			log.Warn("status fetch failed",
				zap.String("reason", bluos.GetShortErrorMessage(err)),
				zap.Duration("retry_in", delay),
				zap.Error(err))

			if bluos.IsUnreachable(err) && l.requery != nil {
				l.requery()
			}
			if l.sleep(ctx, delay) != nil {
				return
			}
			// Start over with a full fetch in case we missed changes
			etag = ""
			continue
		}

		metrics.StatusPolls.WithLabelValues(metrics.ResultOK).Inc()
		metrics.BackoffDelay.Set(0)
		b.Reset()

		etag = status.ETag
		emit(statusUpdate{Endpoint: endpoint, Status: status})
	}
}

// clockSleep waits for d on clk or until ctx is done
func clockSleep(clk clock.Clock) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		timer := clk.Timer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}
