package player

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/stream"
)

// sleepRecorder returns immediately and remembers every delay
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newStatusLoop(endpoints stream.Source[string], d *fakeDevice, sleep func(context.Context, time.Duration) error) *statusLoop {
	return &statusLoop{
		endpoints:  endpoints,
		fetcher:    d.fetcher,
		wait:       bluos.DefaultLongPollWait,
		newBackOff: func() backoff.BackOff { return NewPowerBackOff() },
		sleep:      sleep,
		log:        nopLogger,
	}
}

// script answers the nth status request with steps[n]; later requests block
func script(steps ...func(ctx context.Context) (*bluos.Status, error)) func(context.Context, string, string) (*bluos.Status, error) {
	var n atomic.Int32
	return func(ctx context.Context, _, _ string) (*bluos.Status, error) {
		i := int(n.Add(1)) - 1
		if i < len(steps) {
			return steps[i](ctx)
		}
		return blockUntilDone(ctx)
	}
}

func reply(s *bluos.Status) func(context.Context) (*bluos.Status, error) {
	return func(context.Context) (*bluos.Status, error) { return s, nil }
}

func failWith(err error) func(context.Context) (*bluos.Status, error) {
	return func(context.Context) (*bluos.Status, error) { return nil, err }
}

func TestStatusLoop_LongPollsWithETag(t *testing.T) {
	d := newFakeDevice()
	d.status = script(
		reply(&bluos.Status{ETag: "abc", State: bluos.StatePlay}),
		reply(&bluos.Status{ETag: "def", State: bluos.StatePause}),
	)
	loop := newStatusLoop(stream.Values(endpoint), d, (&sleepRecorder{}).sleep)
	hub := stream.NewHub(loop.produce, stream.WithEqual(statusUpdatesEqual))

	sub := hub.Subscribe()
	defer sub.Close()

	u := receive(t, sub)
	assert.Equal(t, endpoint, u.Endpoint)
	assert.Equal(t, "abc", u.Status.ETag)

	waitCall(t, d)
	waitCall(t, d)
	waitCall(t, d)

	calls := d.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "", calls[0].ETag, "first request has no token")
	assert.Equal(t, "abc", calls[1].ETag)
	assert.Equal(t, "def", calls[2].ETag)
}

func TestStatusLoop_BacksOffAndResetsToken(t *testing.T) {
	d := newFakeDevice()
	d.status = script(
		reply(&bluos.Status{ETag: "abc"}),
		failWith(bluos.NewHTTPError(503, "HTTP 503")),
		failWith(bluos.NewHTTPError(503, "HTTP 503")),
	)
	sleeps := &sleepRecorder{}
	loop := newStatusLoop(stream.Values(endpoint), d, sleeps.sleep)
	hub := stream.NewHub(loop.produce, stream.WithEqual(statusUpdatesEqual))

	sub := hub.Subscribe()
	defer sub.Close()

	receive(t, sub)
	for range 4 {
		waitCall(t, d)
	}

	etags := make([]string, 0, 4)
	for _, c := range d.Calls() {
		etags = append(etags, c.ETag)
	}
	assert.Equal(t, []string{"", "abc", "", ""}, etags)

	delays := sleeps.Delays()
	require.Len(t, delays, 2)
	assert.Equal(t, time.Second, delays[0])
	assert.InDelta(t, 1995.26, float64(delays[1])/float64(time.Millisecond), 0.01)

	assertNoValue(t, sub)
}

func TestStatusLoop_BackoffResetsAfterSuccess(t *testing.T) {
	d := newFakeDevice()
	d.status = script(
		failWith(bluos.NewHTTPError(500, "HTTP 500")),
		failWith(bluos.NewHTTPError(500, "HTTP 500")),
		reply(&bluos.Status{ETag: "abc"}),
		failWith(bluos.NewParseError("bad", nil)),
	)
	sleeps := &sleepRecorder{}
	loop := newStatusLoop(stream.Values(endpoint), d, sleeps.sleep)
	hub := stream.NewHub(loop.produce)

	sub := hub.Subscribe()
	defer sub.Close()

	receive(t, sub)
	for range 5 {
		waitCall(t, d)
	}

	delays := sleeps.Delays()
	require.Len(t, delays, 3)
	assert.Equal(t, time.Second, delays[0])
	assert.Greater(t, delays[1], time.Second)
	assert.Equal(t, time.Second, delays[2], "schedule starts over")
}

func TestStatusLoop_RequeriesWhenUnreachable(t *testing.T) {
	d := newFakeDevice()
	d.status = script(
		failWith(&bluos.DeviceError{Type: bluos.ErrTypeTimeout, Message: "timed out"}),
		failWith(bluos.NewHTTPError(500, "HTTP 500")),
	)
	var requeries atomic.Int32
	loop := newStatusLoop(stream.Values(endpoint), d, (&sleepRecorder{}).sleep)
	loop.requery = func() { requeries.Add(1) }
	hub := stream.NewHub(loop.produce)

	sub := hub.Subscribe()
	defer sub.Close()

	for range 3 {
		waitCall(t, d)
	}
	assert.Equal(t, int32(1), requeries.Load(), "only the timeout asks discovery again")
}

func TestStatusLoop_EndpointChangeCancelsPoll(t *testing.T) {
	const other = "http://10.0.0.6:11000/"

	cancelled := make(chan string, 1)
	d := newFakeDevice()
	d.status = func(ctx context.Context, ep, etag string) (*bluos.Status, error) {
		if ep == endpoint && etag == "" {
			return &bluos.Status{ETag: "abc"}, nil
		}
		<-ctx.Done()
		cancelled <- ep
		return nil, ctx.Err()
	}

	endpoints := make(chan string)
	loop := newStatusLoop(chanSource(endpoints), d, (&sleepRecorder{}).sleep)
	hub := stream.NewHub(loop.produce, stream.WithEqual(statusUpdatesEqual))

	sub := hub.Subscribe()
	defer sub.Close()

	send(t, endpoints, endpoint)
	assert.Equal(t, endpoint, receive(t, sub).Endpoint)
	assert.Equal(t, statusCall{Endpoint: endpoint}, waitCall(t, d))
	assert.Equal(t, statusCall{Endpoint: endpoint, ETag: "abc"}, waitCall(t, d))

	send(t, endpoints, other)
	select {
	case ep := <-cancelled:
		assert.Equal(t, endpoint, ep)
	case <-time.After(waitFor):
		t.Fatal("old poll was not cancelled")
	}
	assert.Equal(t, statusCall{Endpoint: other}, waitCall(t, d), "new endpoint starts without a token")
}

func TestStatusLoop_StopsWithLastSubscriber(t *testing.T) {
	stopped := make(chan struct{})
	d := newFakeDevice()
	d.status = func(ctx context.Context, _, _ string) (*bluos.Status, error) {
		<-ctx.Done()
		close(stopped)
		return nil, ctx.Err()
	}
	sleeps := &sleepRecorder{}
	loop := newStatusLoop(stream.Values(endpoint), d, sleeps.sleep)
	hub := stream.NewHub(loop.produce)

	sub := hub.Subscribe()
	waitCall(t, d)
	sub.Close()

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("request not cancelled")
	}
	assert.Empty(t, sleeps.Delays(), "cancellation is not a failure")
	assert.Len(t, d.Calls(), 1)
}

func TestClockSleep(t *testing.T) {
	mock := clock.NewMock()
	sleep := clockSleep(mock)

	done := make(chan error, 1)
	go func() { done <- sleep(context.Background(), time.Second) }()

	var err error
	require.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, waitFor, time.Millisecond)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
