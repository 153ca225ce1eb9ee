package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/stream"
)

const waitFor = 2 * time.Second

// statusCall is one /Status request seen by fakeDevice
type statusCall struct {
	Endpoint string
	ETag     string
}

// fakeDevice answers Status and SyncStatus from scripted functions and
// records what it was asked.
type fakeDevice struct {
	mu          sync.Mutex
	calls       []statusCall
	syncCalls   []string
	status      func(ctx context.Context, endpoint, etag string) (*bluos.Status, error)
	syncStatus  func(ctx context.Context, endpoint string) (*bluos.SyncStatus, error)
	statusCalls chan statusCall
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{statusCalls: make(chan statusCall, 100)}
}

func (d *fakeDevice) fetcher(endpoint string) Fetcher {
	return fakeFetcher{device: d, endpoint: endpoint}
}

func (d *fakeDevice) Calls() []statusCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]statusCall(nil), d.calls...)
}

func (d *fakeDevice) SyncCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.syncCalls...)
}

type fakeFetcher struct {
	device   *fakeDevice
	endpoint string
}

func (f fakeFetcher) Status(ctx context.Context, etag string, _ time.Duration) (*bluos.Status, error) {
	d := f.device
	call := statusCall{Endpoint: f.endpoint, ETag: etag}
	d.mu.Lock()
	d.calls = append(d.calls, call)
	fn := d.status
	d.mu.Unlock()
	d.statusCalls <- call

	if fn == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return fn(ctx, f.endpoint, etag)
}

func (f fakeFetcher) SyncStatus(ctx context.Context) (*bluos.SyncStatus, error) {
	d := f.device
	d.mu.Lock()
	d.syncCalls = append(d.syncCalls, f.endpoint)
	fn := d.syncStatus
	d.mu.Unlock()

	if fn == nil {
		return &bluos.SyncStatus{Name: "Living Room"}, nil
	}
	return fn(ctx, f.endpoint)
}

// blockUntilDone is a status script step that holds the request open
func blockUntilDone(ctx context.Context) (*bluos.Status, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// chanSource is a Source fed from the test
func chanSource[T any](values <-chan T) *stream.Hub[T] {
	return stream.NewHub(func(ctx context.Context, emit func(T), _ func(error)) {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-values:
				emit(v)
			}
		}
	})
}

func receive[T any](t *testing.T, s *stream.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func assertNoValue[T any](t *testing.T, s *stream.Subscription[T]) {
	t.Helper()
	select {
	case v := <-s.C():
		t.Fatalf("unexpected value %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitCall(t *testing.T, d *fakeDevice) statusCall {
	t.Helper()
	select {
	case c := <-d.statusCalls:
		return c
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a status request")
	}
	return statusCall{}
}

func send[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(waitFor):
		t.Fatal("producer not running")
	}
}

var nopLogger = zap.NewNop()
