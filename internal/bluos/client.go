package bluos

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/logging"
	"github.com/muurk/bluos/internal/version"
)

const (
	// DefaultPort is the HTTP port BluOS players listen on
	DefaultPort = 11000

	// DefaultTimeout bounds every request that is not a long poll
	DefaultTimeout = 10 * time.Second

	// DefaultLongPollWait is the server-side wait hint sent with a known etag
	DefaultLongPollWait = 100 * time.Second

	// maxBodySize caps how much of a response is read
	maxBodySize = 1 << 20
)

// Client talks to one player. It holds no state between requests and is safe
// for concurrent use.
type Client struct {
	// Endpoint is the player's base URL (e.g., "http://10.0.0.5:11000/")
	Endpoint string

	// HTTPClient is the underlying HTTP client. It must not set a global
	// Timeout; deadlines are applied per request.
	HTTPClient *http.Client

	// Timeout bounds one request on top of any long-poll wait
	Timeout time.Duration

	log *zap.Logger
}

// NewClient creates a client for the player at endpoint
func NewClient(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{},
		Timeout:    DefaultTimeout,
		log:        logging.Named("bluos"),
	}
}

// EndpointFor builds the base URL of a player from its address
func EndpointFor(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("http://%s:%d/", host, port)
}

// Status fetches /Status. With a non-empty etag the player holds the request
// for up to wait until something changes.
func (c *Client) Status(ctx context.Context, etag string, wait time.Duration) (*Status, error) {
	params := url.Values{}
	params.Set("etag", etag)

	timeout := c.Timeout
	if etag != "" {
		params.Set("timeout", strconv.Itoa(int(wait/time.Second)))
		timeout += wait
	}

	body, err := c.fetch(ctx, "/Status", params, timeout)
	if err != nil {
		return nil, err
	}
	return ParseStatus(body)
}

// SyncStatus fetches /SyncStatus
func (c *Client) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	body, err := c.fetch(ctx, "/SyncStatus", nil, c.Timeout)
	if err != nil {
		return nil, err
	}
	return ParseSyncStatus(body)
}

// fetch performs a GET that must answer with an XML document
func (c *Client) fetch(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	resp, err := c.do(ctx, path, params, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "text/xml" && mediaType != "application/xml" {
		return nil, NewParseError(fmt.Sprintf("unexpected content type %q", contentType), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewNetworkError("failed to read response body", c.Endpoint, err)
	}

	return body, nil
}

// command performs a GET whose body is not needed
func (c *Client) command(ctx context.Context, path string, params url.Values) error {
	resp, err := c.do(ctx, path, params, c.Timeout)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return resp.Body.Close()
}

// do issues the request and checks the status code. The caller closes the
// body. Cancellation is returned as the bare context error so callers can
// tell it apart from device failures.
func (c *Client) do(ctx context.Context, path string, params url.Values, timeout time.Duration) (*http.Response, error) {
	base, err := url.Parse(c.Endpoint)
	if err != nil || base.Host == "" {
		return nil, NewValidationError(fmt.Sprintf("invalid endpoint %q", c.Endpoint))
	}
	target := base.ResolveReference(&url.URL{Path: path})
	if len(params) > 0 {
		target.RawQuery = params.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		cancel()
		return nil, NewNetworkError("failed to create request", c.Endpoint, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("x-request-id", requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/xml")
	logging.LogHTTPRequest(requestID, req.Method, target.String())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewNetworkError("request failed", c.Endpoint, err)
	}

	logging.LogHTTPResponse(requestID, resp.StatusCode, resp.Header.Get("Content-Type"), int(resp.ContentLength))

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, NewHTTPError(resp.StatusCode, fmt.Sprintf("%s returned status %d", path, resp.StatusCode))
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) logger() *zap.Logger {
	if c.log == nil {
		return logging.Named("bluos")
	}
	return c.log
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
