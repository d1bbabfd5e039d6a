package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/ocrwatch/internal/trace"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// Message is the envelope of every WebSocket frame.
type Message struct {
	Type string `json:"type"`
}

// EventMessage carries one dispatch event.
type EventMessage struct {
	Type  string        `json:"type"`
	Event watcher.Event `json:"event"`
}

// StatusMessage answers a client "status" request.
type StatusMessage struct {
	Type   string `json:"type"`
	Status Status `json:"status"`
}

// ErrorMessage reports a rejected client frame.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-RateLimitWindow)
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Hub fans dispatch events out to WebSocket clients. It is a watcher.Sink.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]*rateLimiter)}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish writes ev to every client without blocking the caller.
func (h *Hub) Publish(_ context.Context, ev watcher.Event) {
	msg := EventMessage{Type: "event", Event: ev}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns {
		go func(c *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
			defer cancel()
			if err := wsjson.Write(ctx, c, msg); err != nil {
				slog.Debug("websocket event write failed", "error", err)
			}
		}(conn)
	}
}

func (h *Hub) add(c *websocket.Conn) *rateLimiter {
	rl := &rateLimiter{}
	h.mu.Lock()
	h.conns[c] = rl
	h.mu.Unlock()
	return rl
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := s.hub.add(conn)
	defer s.hub.remove(conn)

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			log.Debug("websocket closed", "error", err)
			return
		}

		if !rl.allow(time.Now()) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch msg.Type {
		case "status":
			_ = wsjson.Write(ctx, conn, StatusMessage{Type: "status", Status: s.status()})
		case "ping":
			_ = wsjson.Write(ctx, conn, Message{Type: "pong"})
		default:
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "unknown message type " + msg.Type})
		}
	}
}
