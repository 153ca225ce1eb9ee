package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/version"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// paramError is a missing or malformed command parameter
type paramError struct {
	name string
	msg  string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.name, e.msg)
}

// command runs one player command with the request's parameters
type command func(ctx context.Context, p Player, params url.Values) error

var commands = map[string]command{
	"play": func(ctx context.Context, p Player, params url.Values) error {
		if params.Get("seek") == "" {
			return p.Play(ctx)
		}
		seconds, err := strconv.Atoi(params.Get("seek"))
		if err != nil || seconds < 0 {
			return &paramError{"seek", "expected seconds"}
		}
		return p.Seek(ctx, seconds)
	},
	"pause":    func(ctx context.Context, p Player, _ url.Values) error { return p.Pause(ctx) },
	"toggle":   func(ctx context.Context, p Player, _ url.Values) error { return p.Toggle(ctx) },
	"stop":     func(ctx context.Context, p Player, _ url.Values) error { return p.Stop(ctx) },
	"next":     func(ctx context.Context, p Player, _ url.Values) error { return p.Next(ctx) },
	"previous": func(ctx context.Context, p Player, _ url.Values) error { return p.Previous(ctx) },
	"mute":     func(ctx context.Context, p Player, _ url.Values) error { return p.Mute(ctx, true) },
	"unmute":   func(ctx context.Context, p Player, _ url.Values) error { return p.Mute(ctx, false) },
	"shuffle": func(ctx context.Context, p Player, params url.Values) error {
		on, err := strconv.ParseBool(params.Get("on"))
		if err != nil {
			return &paramError{"on", "expected true or false"}
		}
		return p.Shuffle(ctx, on)
	},
	"repeat": func(ctx context.Context, p Player, params url.Values) error {
		mode, err := bluos.ParseRepeatMode(params.Get("mode"))
		if err != nil {
			return &paramError{"mode", "expected all, one or off"}
		}
		return p.Repeat(ctx, mode)
	},
	"volume": func(ctx context.Context, p Player, params url.Values) error {
		if db := params.Get("db"); db != "" {
			step, err := strconv.ParseFloat(db, 64)
			if err != nil {
				return &paramError{"db", "expected a number of decibels"}
			}
			return p.StepVolume(ctx, step)
		}
		level, err := strconv.ParseFloat(params.Get("level"), 64)
		if err != nil || level < 0 || level > 100 {
			return &paramError{"level", "expected 0 to 100"}
		}
		return p.SetVolume(ctx, level/100)
	},
}

// CommandNames lists the commands accepted by POST /commands/{name}
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.StateTimeout)
	defer cancel()

	state, err := s.player.Snapshot(ctx)
	if err != nil {
		s.log.Warn("no state available", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	cmd, ok := commands[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown command %q", name))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.log.Info("command", zap.String("command", name), zap.String("remote_addr", r.RemoteAddr))
	if err := cmd(r.Context(), s.player, r.Form); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Warn("command failed", zap.String("command", name), zap.Error(err))
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": name})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     version.Version,
		"connections": s.GetActiveConnections(),
	})
}

// statusFor maps a command failure onto an HTTP status
func statusFor(err error) int {
	var pe *paramError
	switch {
	case errors.As(err, &pe), bluos.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		resp.Hint = bluos.GetTroubleshootingHint(err)
	}
	writeJSON(w, status, resp)
}
