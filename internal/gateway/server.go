// Package gateway exposes the run loop over HTTP: an SSE chat stream, a
// WebSocket chat stream, health, and metrics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/observability"
	"github.com/numera-ai/numera/internal/sessions"
	"github.com/numera-ai/numera/pkg/models"
)

// Config configures the gateway server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ReadTimeout bounds request header reads.
	ReadTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server relays agent event streams to HTTP clients.
type Server struct {
	config   Config
	loop     *agent.Loop
	store    sessions.Store
	logger   *slog.Logger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer

	httpServer *http.Server
}

// NewServer creates a gateway. The store, metrics, and gatherer are
// optional; without a gatherer /metrics serves the default registry.
func NewServer(config Config, loop *agent.Loop, store sessions.Store, logger *slog.Logger, metrics *observability.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	if loop == nil {
		return nil, errors.New("gateway: loop is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:   config,
		loop:     loop,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		gatherer: gatherer,
	}
	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: config.ReadTimeout,
	}
	return s, nil
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/stream", s.instrument("/v1/chat/stream", s.handleChatStream))
	mux.HandleFunc("GET /v1/chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /v1/sessions", s.instrument("/v1/sessions", s.handleListSessions))
	mux.HandleFunc("GET /healthz", s.instrument("/healthz", s.handleHealthz))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.config.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// chatRequest is the body of POST /v1/chat/stream and the WebSocket chat
// frame payload.
type chatRequest struct {
	// SessionKey selects (creating if needed) a persistent session.
	SessionKey string `json:"session_key,omitempty"`

	// SessionID selects an existing session by ID.
	SessionID string `json:"session_id,omitempty"`

	// Message is the user's message text.
	Message string `json:"message"`
}

// resolveSession maps the request to a session, or nil for an ephemeral run.
func (s *Server) resolveSession(ctx context.Context, req *chatRequest) (*models.Session, error) {
	if s.store == nil {
		return nil, nil
	}
	switch {
	case req.SessionID != "":
		return s.store.Get(ctx, req.SessionID)
	case req.SessionKey != "":
		return s.store.GetOrCreate(ctx, req.SessionKey)
	default:
		return nil, nil
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.resolveSession(r.Context(), &req)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "unknown session")
			return
		}
		s.logger.Error("session resolution failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	events, err := s.loop.Run(r.Context(), session, &models.Message{
		Role:    models.RoleUser,
		Content: req.Message,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("failed to marshal event", "type", string(event.Type), "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		flusher.Flush()
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "no session store configured")
		return
	}

	opts := sessions.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	list, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "session list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next(w, r)
			return
		}
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(recorder.status), time.Since(start).Seconds())
	}
}

// statusRecorder captures the response status for metrics. Flush is
// forwarded so SSE keeps working through the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
