package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/logging"
	"github.com/muurk/bluos/internal/metrics"
	"github.com/muurk/bluos/internal/player"
	"github.com/muurk/bluos/internal/stream"
)

// shutdownTimeout bounds a graceful stop triggered by context cancellation
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host string
	Port int

	// PushInterval is the minimum gap between two websocket pushes; 0 pushes
	// every snapshot
	PushInterval time.Duration

	// StateTimeout bounds how long GET /state waits for a first snapshot
	StateTimeout time.Duration

	CertPath string // Serve HTTPS when both are set
	KeyPath  string
}

// Addr is the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Player is the part of player.Player the bridge drives
type Player interface {
	State() stream.Source[player.State]
	Snapshot(ctx context.Context) (player.State, error)

	Play(ctx context.Context) error
	Seek(ctx context.Context, seconds int) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Shuffle(ctx context.Context, on bool) error
	Repeat(ctx context.Context, mode bluos.RepeatMode) error
	Mute(ctx context.Context, muted bool) error
	SetVolume(ctx context.Context, level float64) error
	StepVolume(ctx context.Context, db float64) error
}

// Server exposes a player over HTTP and websockets
type Server struct {
	config   *Config
	player   Player
	http     *http.Server
	upgrader websocket.Upgrader
	log      *zap.Logger

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[*websocket.Conn]string
}

// New creates a new Server instance
func New(config *Config, p Player) *Server {
	if config.StateTimeout <= 0 {
		config.StateTimeout = bluos.DefaultTimeout
	}
	s := &Server{
		config:      config,
		player:      p,
		log:         logging.Named("bridge"),
		activeConns: make(map[*websocket.Conn]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler routes every bridge endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /commands/{name}", s.handleCommand)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}

	if s.config.CertPath != "" && s.config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(s.config.CertPath, s.config.KeyPath)
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.log.Info("TLS configuration", zap.Any("tls_info", GetTLSInfo(tlsConfig)))
		ln = tls.NewListener(ln, tlsConfig)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("bridge listening",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("push_interval", s.config.PushInterval))

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting requests, closes every websocket and waits for
// their handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down bridge")

	err := s.http.Shutdown(ctx)

	// Hijacked connections are not tracked by http.Server
	s.mu.Lock()
	for conn, addr := range s.activeConns {
		s.log.Debug("closing websocket", zap.String("remote_addr", addr))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("shutdown timeout, forcing close")
		err = multierr.Append(err, ctx.Err())
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of open websockets
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) track(conn *websocket.Conn, remoteAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeConns[conn] = remoteAddr
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeConns, conn)
}
