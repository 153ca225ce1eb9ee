package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/player"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Message is one websocket push
type Message struct {
	Type      string        `json:"type"` // "state" or "error"
	State     *player.State `json:"state,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// handleWebSocket streams state snapshots to the client until either side
// closes. Pushes are spaced at least PushInterval apart; snapshots arriving
// in between are conflated to the newest.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	log := s.log.With(zap.String("remote_addr", remoteAddr))

	s.wg.Add(1)
	defer s.wg.Done()
	s.track(conn, remoteAddr)
	defer func() {
		s.untrack(conn)
		_ = conn.Close()
		log.Info("websocket closed")
	}()
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.readClient(conn, cancel, log)

	if err := s.pushStates(ctx, conn); err != nil {
		log.Debug("websocket push ended", zap.Error(err))
	}
}

func (s *Server) pushStates(ctx context.Context, conn *websocket.Conn) error {
	sub := s.player.State().Subscribe()
	defer sub.Close()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var (
		pending  *player.State
		throttle <-chan time.Time
	)
	send := func(st player.State) error {
		if s.config.PushInterval > 0 {
			throttle = time.After(s.config.PushInterval)
		}
		return writeMessage(conn, Message{Type: "state", State: &st, Timestamp: time.Now()})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case st, ok := <-sub.C():
			if !ok {
				err := sub.Err()
				if err != nil {
					_ = writeMessage(conn, Message{Type: "error", Error: err.Error(), Timestamp: time.Now()})
				}
				return err
			}
			if throttle != nil {
				pending = &st
				continue
			}
			if err := send(st); err != nil {
				return err
			}

		case <-throttle:
			throttle = nil
			if pending != nil {
				st := *pending
				pending = nil
				if err := send(st); err != nil {
					return err
				}
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

// readClient drains the client side, which only sends control frames, and
// cancels the push loop once the connection goes away.
func (s *Server) readClient(conn *websocket.Conn, cancel context.CancelFunc, log *zap.Logger) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
