package bluos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// recorder is a fake player that records every request
type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
	body     string
	status   int
	ctype    string
}

func newRecorder(body string) *recorder {
	return &recorder{body: body, status: http.StatusOK, ctype: "text/xml; charset=UTF-8"}
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests = append(r.requests, req.Clone(context.Background()))
	r.mu.Unlock()

	w.Header().Set("Content-Type", r.ctype)
	w.WriteHeader(r.status)
	_, _ = w.Write([]byte(r.body))
}

func (r *recorder) last(t *testing.T) *http.Request {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return r.requests[len(r.requests)-1]
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL + "/")
}

func TestEndpointFor(t *testing.T) {
	if got := EndpointFor("10.0.0.5", 11000); got != "http://10.0.0.5:11000/" {
		t.Errorf("EndpointFor() = %s", got)
	}
	if got := EndpointFor("10.0.0.5", 0); got != "http://10.0.0.5:11000/" {
		t.Errorf("EndpointFor() default port = %s", got)
	}
}

func TestStatus_InitialFetch(t *testing.T) {
	rec := newRecorder(statusPlaying)
	client := newTestClient(t, rec)

	status, err := client.Status(context.Background(), "", DefaultLongPollWait)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.ETag == "" {
		t.Error("Expected etag to be parsed")
	}

	req := rec.last(t)
	if req.URL.Path != "/Status" {
		t.Errorf("path = %s, want /Status", req.URL.Path)
	}
	q := req.URL.Query()
	if _, ok := q["etag"]; !ok || q.Get("etag") != "" {
		t.Errorf("etag param = %q, want present and empty", q.Get("etag"))
	}
	if _, ok := q["timeout"]; ok {
		t.Error("timeout must not be sent without an etag")
	}
	if req.Header.Get("x-request-id") == "" {
		t.Error("Expected x-request-id header")
	}
	if req.Header.Get("User-Agent") == "" {
		t.Error("Expected User-Agent header")
	}
}

func TestStatus_LongPoll(t *testing.T) {
	rec := newRecorder(statusPlaying)
	client := newTestClient(t, rec)

	if _, err := client.Status(context.Background(), "abc", DefaultLongPollWait); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	q := rec.last(t).URL.Query()
	if q.Get("etag") != "abc" {
		t.Errorf("etag = %q, want abc", q.Get("etag"))
	}
	if q.Get("timeout") != "100" {
		t.Errorf("timeout = %q, want 100", q.Get("timeout"))
	}
}

func TestStatus_RequestIDsAreUnique(t *testing.T) {
	rec := newRecorder(statusPlaying)
	client := newTestClient(t, rec)

	for i := 0; i < 2; i++ {
		if _, err := client.Status(context.Background(), "", 0); err != nil {
			t.Fatalf("Status() error = %v", err)
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.requests[0].Header.Get("x-request-id") == rec.requests[1].Header.Get("x-request-id") {
		t.Error("Expected a fresh x-request-id per request")
	}
}

func TestStatus_HTTPError(t *testing.T) {
	rec := newRecorder("")
	rec.status = http.StatusServiceUnavailable
	client := newTestClient(t, rec)

	_, err := client.Status(context.Background(), "", 0)
	if !IsHTTPError(err) {
		t.Fatalf("Expected HTTP error, got %v", err)
	}
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", devErr.StatusCode)
	}
}

func TestStatus_WrongContentType(t *testing.T) {
	rec := newRecorder(`{"etag":"a"}`)
	rec.ctype = "application/json"
	client := newTestClient(t, rec)

	if _, err := client.Status(context.Background(), "", 0); !IsParseError(err) {
		t.Fatalf("Expected parse error, got %v", err)
	}
}

func TestStatus_ValidationError(t *testing.T) {
	client := newTestClient(t, newRecorder(`<status etag="a"><state>warp</state></status>`))

	if _, err := client.Status(context.Background(), "", 0); !IsValidationError(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestStatus_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL + "/"
	server.Close()

	_, err := NewClient(endpoint).Status(context.Background(), "", 0)
	if !IsNetworkError(err) {
		t.Fatalf("Expected network error, got %v", err)
	}
}

func TestStatus_CancelledReturnsContextError(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := client.Status(ctx, "abc", time.Second)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if IsNetworkError(err) {
			t.Error("cancellation must not be reported as a network error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Status() did not return after cancel")
	}
}

func TestSyncStatus(t *testing.T) {
	rec := newRecorder(syncStatusDoc)
	client := newTestClient(t, rec)

	s, err := client.SyncStatus(context.Background())
	if err != nil {
		t.Fatalf("SyncStatus() error = %v", err)
	}
	if s.Name != "Living Room" {
		t.Errorf("Name = %q", s.Name)
	}
	if rec.last(t).URL.Path != "/SyncStatus" {
		t.Errorf("path = %s", rec.last(t).URL.Path)
	}
}

func TestInvalidEndpoint(t *testing.T) {
	if _, err := NewClient("not a url").Status(context.Background(), "", 0); !IsValidationError(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name  string
		call  func(ctx context.Context, c *Client) error
		path  string
		query url.Values
	}{
		{"play", func(ctx context.Context, c *Client) error { return c.Play(ctx) }, "/Play", url.Values{}},
		{"seek", func(ctx context.Context, c *Client) error { return c.Seek(ctx, 42) }, "/Play", url.Values{"seek": {"42"}}},
		{"pause", func(ctx context.Context, c *Client) error { return c.Pause(ctx) }, "/Pause", url.Values{}},
		{"toggle", func(ctx context.Context, c *Client) error { return c.Toggle(ctx) }, "/Pause", url.Values{"toggle": {"1"}}},
		{"stop", func(ctx context.Context, c *Client) error { return c.Stop(ctx) }, "/Stop", url.Values{}},
		{"skip", func(ctx context.Context, c *Client) error { return c.Skip(ctx) }, "/Skip", url.Values{}},
		{"back", func(ctx context.Context, c *Client) error { return c.Back(ctx) }, "/Back", url.Values{}},
		{"shuffle on", func(ctx context.Context, c *Client) error { return c.Shuffle(ctx, true) }, "/Shuffle", url.Values{"state": {"1"}}},
		{"shuffle off", func(ctx context.Context, c *Client) error { return c.Shuffle(ctx, false) }, "/Shuffle", url.Values{"state": {"0"}}},
		{"repeat all", func(ctx context.Context, c *Client) error { return c.Repeat(ctx, RepeatAll) }, "/Repeat", url.Values{"state": {"0"}}},
		{"repeat one", func(ctx context.Context, c *Client) error { return c.Repeat(ctx, RepeatOne) }, "/Repeat", url.Values{"state": {"1"}}},
		{"repeat off", func(ctx context.Context, c *Client) error { return c.Repeat(ctx, RepeatOff) }, "/Repeat", url.Values{"state": {"2"}}},
		{"mute", func(ctx context.Context, c *Client) error { return c.Mute(ctx, true) }, "/Volume", url.Values{"mute": {"1"}}},
		{"unmute", func(ctx context.Context, c *Client) error { return c.Mute(ctx, false) }, "/Volume", url.Values{"mute": {"0"}}},
		{"set volume", func(ctx context.Context, c *Client) error { return c.SetVolume(ctx, 0.25) }, "/Volume", url.Values{"level": {"25"}}},
		{"volume up", func(ctx context.Context, c *Client) error { return c.StepVolume(ctx, DefaultVolumeStep) }, "/Volume", url.Values{"db": {"0.8dB"}}},
		{"volume down", func(ctx context.Context, c *Client) error { return c.StepVolume(ctx, -2) }, "/Volume", url.Values{"db": {"-2dB"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder("<ok/>")
			client := newTestClient(t, rec)

			if err := tt.call(context.Background(), client); err != nil {
				t.Fatalf("error = %v", err)
			}

			req := rec.last(t)
			if req.URL.Path != tt.path {
				t.Errorf("path = %s, want %s", req.URL.Path, tt.path)
			}
			if got := req.URL.Query(); got.Encode() != tt.query.Encode() {
				t.Errorf("query = %s, want %s", got.Encode(), tt.query.Encode())
			}
		})
	}
}

func TestCommandValidation(t *testing.T) {
	client := NewClient("http://10.0.0.5:11000/")

	if err := client.SetVolume(context.Background(), 1.5); !IsValidationError(err) {
		t.Errorf("SetVolume(1.5) error = %v, want validation error", err)
	}
	if err := client.Repeat(context.Background(), RepeatMode("sometimes")); !IsValidationError(err) {
		t.Errorf("Repeat(sometimes) error = %v, want validation error", err)
	}
}

func TestParseRepeatMode(t *testing.T) {
	for _, s := range []string{"all", "one", "off"} {
		if m, err := ParseRepeatMode(s); err != nil || string(m) != s {
			t.Errorf("ParseRepeatMode(%q) = %q, %v", s, m, err)
		}
	}
	if _, err := ParseRepeatMode("shuffle"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
