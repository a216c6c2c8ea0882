package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
)

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "thinkloop_api_requests_total",
	Help: "Ask requests served by the HTTP API, by mode and status code.",
}, []string{"mode", "code"})

// APIServer exposes the agent modes over HTTP. Every request gets its own
// session, so nothing leaks between callers.
type APIServer struct {
	Runtime *agents.Runtime
	Logger  *slog.Logger
	// Timeout bounds one ask request. Zero means five minutes.
	Timeout time.Duration
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Mode      string `json:"mode"`
	Prompt    string `json:"prompt"`
	Citations bool   `json:"citations,omitempty"`
}

// AskResponse is the reply of POST /api/ask.
type AskResponse struct {
	Content    string           `json:"content"`
	Reasoning  string           `json:"reasoning,omitempty"`
	Usage      *framework.Usage `json:"usage,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ToolInfo describes one tool in GET /api/tools.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Serve starts listening on the provided address.
func (s *APIServer) Serve(addr string) error {
	return s.ServeContext(context.Background(), addr)
}

// ServeContext allows the caller to control shutdown via context cancellation.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger().Info("API listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler builds the router.
func (s *APIServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/tools", s.handleTools)
	})
	return r
}

func (s *APIServer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *APIServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *APIServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, "", http.StatusBadRequest, err)
		return
	}
	mode, err := agents.ParseMode(req.Mode)
	if err != nil {
		s.fail(w, req.Mode, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.fail(w, string(mode), http.StatusBadRequest, framework.ErrEmptyPrompt)
		return
	}
	session, err := s.Runtime.NewSession(mode, agents.SessionOptions{Citations: req.Citations})
	if err != nil {
		s.fail(w, string(mode), http.StatusInternalServerError, err)
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	res, err := session.AskWithProgress(ctx, req.Prompt, nil)
	if err != nil {
		s.fail(w, string(mode), statusFor(err), err)
		return
	}
	apiRequests.WithLabelValues(string(mode), strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, AskResponse{
		Content:    res.Content,
		Reasoning:  res.Reasoning,
		Usage:      res.Usage,
		Transcript: res.Transcript,
	})
}

func (s *APIServer) handleTools(w http.ResponseWriter, r *http.Request) {
	mode, err := agents.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	registry, err := s.Runtime.Registry(mode)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	infos := make([]ToolInfo, 0, registry.Len())
	for _, tool := range registry.All() {
		infos = append(infos, ToolInfo{Name: tool.Name(), Description: tool.Description(), Parameters: tool.Schema()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mode": mode, "tools": infos})
}

func (s *APIServer) fail(w http.ResponseWriter, mode string, status int, err error) {
	apiRequests.WithLabelValues(mode, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		s.logger().Error("ask failed", "mode", mode, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps agent errors onto HTTP status codes.
func statusFor(err error) int {
	var transient *framework.TransientAPIError
	var client *framework.ClientError
	var malformed *framework.MalformedResponseError
	switch {
	case errors.Is(err, framework.ErrEmptyPrompt), errors.Is(err, framework.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &transient), errors.As(err, &client), errors.As(err, &malformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
