package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/events"
	"github.com/GriffinCanCode/ocrwatch/internal/ocrutil"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/rulefile"
	"github.com/GriffinCanCode/ocrwatch/internal/trace"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// Confidence scopes accepted by POST /api/confidence.
const (
	ScopeEngine  = "engine"
	ScopeWatcher = "watcher"
)

// Status is the watcher summary served by /api/status.
type Status struct {
	Running           bool    `json:"running"`
	IntervalSeconds   float64 `json:"interval_seconds"`
	Rules             int     `json:"rules"`
	DefaultConfidence float64 `json:"default_confidence"`
	Clients           int     `json:"clients"`
	RecentFailures    int     `json:"recent_failures"`
}

type startRequest struct {
	Interval float64 `json:"interval"`
}

type confidenceRequest struct {
	Threshold *float64 `json:"threshold"`
	Scope     string   `json:"scope"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server exposes a watcher over HTTP.
type Server struct {
	watcher *watcher.Watcher
	finder  *ocrutil.Finder
	hub     *Hub
	history *events.History
}

// New creates a server and registers its hub and event history as sinks on w.
func New(w *watcher.Watcher) *Server {
	s := &Server{
		watcher: w,
		finder:  ocrutil.New(w.Device(), w.Engine()),
		hub:     NewHub(),
		history: events.NewHistory(HistorySize),
	}
	w.AddSink(s.hub)
	w.AddSink(s.history)
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("POST /api/rules", s.handleAddRule)
	mux.HandleFunc("DELETE /api/rules", s.handleClearRules)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleRemoveRule)
	mux.HandleFunc("POST /api/watcher/start", s.handleStart)
	mux.HandleFunc("POST /api/watcher/stop", s.handleStop)
	mux.HandleFunc("POST /api/confidence", s.handleConfidence)
	mux.HandleFunc("GET /api/texts", s.handleTexts)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) status() Status {
	return Status{
		Running:           s.watcher.Running(),
		IntervalSeconds:   s.watcher.Interval().Seconds(),
		Rules:             len(s.watcher.Rules()),
		DefaultConfidence: s.watcher.DefaultConfidence(),
		Clients:           s.hub.Clients(),
		RecentFailures:    s.history.Failures(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Rules())
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var spec rulefile.Spec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	id, err := spec.Apply(s.watcher)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleClearRules(w http.ResponseWriter, _ *http.Request) {
	n := len(s.watcher.Rules())
	s.watcher.Clear()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid rule id"))
		return
	}
	if !s.watcher.Remove(id) {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "rule not found").WithMetadata("rule_id", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	interval, ok := watcher.Seconds(req.Interval)
	if !ok {
		writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "interval %v seconds out of range", req.Interval))
		return
	}
	s.watcher.Start(interval)
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.watcher.Stop()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	var req confidenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Threshold == nil || !recognition.ValidConfidence(*req.Threshold) {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "threshold must be within [0,1]"))
		return
	}

	if req.Scope == "" {
		req.Scope = ScopeEngine
	}
	switch req.Scope {
	case ScopeEngine:
		if err := s.watcher.SetConfidenceThreshold(*req.Threshold); err != nil {
			writeError(w, err)
			return
		}
	case ScopeWatcher:
		s.watcher.SetDefaultConfidence(*req.Threshold)
	default:
		writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown scope %q", req.Scope))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threshold": *req.Threshold, "scope": req.Scope})
}

func (s *Server) handleTexts(w http.ResponseWriter, r *http.Request) {
	opts := []ocrutil.Option{ocrutil.WithConfidence(s.watcher.DefaultConfidence())}
	if c := r.URL.Query().Get("confidence"); c != "" {
		f, err := strconv.ParseFloat(c, 64)
		if err != nil || !recognition.ValidConfidence(f) {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid confidence %q", c))
			return
		}
		opts = append(opts, ocrutil.WithConfidence(f))
	}

	ctx, cancel := context.WithTimeout(r.Context(), TextsTimeout)
	defer cancel()
	texts, err := s.finder.Texts(ctx, opts...)
	if err != nil {
		trace.Logger(ctx).Warn("texts capture failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"texts": texts})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid limit %q", v))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.history.Last(limit))
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), errorResponse{Error: err.Error(), Code: string(code)})
}

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeInvalidRule:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnsupported:
		return http.StatusNotImplemented
	case apperrors.CodeUnavailable, apperrors.CodeCaptureFailed:
		return http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
