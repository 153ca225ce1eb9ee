package player

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/metrics"
	"github.com/muurk/bluos/internal/stream"
)

// syncUpdate is one /SyncStatus payload and the endpoint it came from
type syncUpdate struct {
	Endpoint string
	Sync     *bluos.SyncStatus
}

func syncUpdatesEqual(a, b syncUpdate) bool {
	return a.Endpoint == b.Endpoint && cmp.Equal(a.Sync, b.Sync)
}

// syncKey identifies the (endpoint, syncStat) pair a descriptor belongs to
func syncKey(u statusUpdate) string {
	if u.Status == nil || u.Status.SyncStat == nil {
		return u.Endpoint + "#"
	}
	return fmt.Sprintf("%s#%v", u.Endpoint, *u.Status.SyncStat)
}

// syncLoop fetches /SyncStatus whenever the status loop reports a new
// syncStat, or the first status from an endpoint. A failed fetch is not
// retried until the counter changes again.
type syncLoop struct {
	status  stream.Source[statusUpdate]
	fetcher func(endpoint string) Fetcher
	log     *zap.Logger
}

func (l *syncLoop) produce(ctx context.Context, emit func(syncUpdate), fail func(error)) {
	sub := l.status.Subscribe()
	defer sub.Close()

	var (
		key         string
		cancelFetch context.CancelFunc
		fetchDone   chan struct{}
	)
	stop := func() {
		if cancelFetch != nil {
			cancelFetch()
			<-fetchDone
			cancelFetch = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					fail(err)
				}
				return
			}
			k := syncKey(u)
			if k == key {
				continue
			}
			key = k
			stop()

			fctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			cancelFetch, fetchDone = cancel, done
			go func(endpoint string) {
				defer close(done)
				l.fetch(fctx, endpoint, emit)
			}(u.Endpoint)
		}
	}
}

func (l *syncLoop) fetch(ctx context.Context, endpoint string, emit func(syncUpdate)) {
	sync, err := l.fetcher(endpoint).SyncStatus(ctx)
	switch {
	case ctx.Err() != nil:
		metrics.SyncStatusFetches.WithLabelValues(metrics.ResultCancelled).Inc()
	case err != nil:
		metrics.SyncStatusFetches.WithLabelValues(metrics.ResultError).Inc()
		l.log.Warn("sync status fetch failed",
			zap.String("endpoint", endpoint),
			zap.String("reason", bluos.GetShortErrorMessage(err)),
			zap.Error(err))
	default:
		metrics.SyncStatusFetches.WithLabelValues(metrics.ResultOK).Inc()
		emit(syncUpdate{Endpoint: endpoint, Sync: sync})
	}
}
