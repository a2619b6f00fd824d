// Package api exposes the HTTP interface for the sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
	"github.com/scamtrace/chainabuse-sync/internal/metrics"
	"github.com/scamtrace/chainabuse-sync/internal/status"
	"github.com/scamtrace/chainabuse-sync/internal/store"
)

// Runner triggers fetch runs. *fetcher.Fetcher satisfies this interface.
type Runner interface {
	Run(ctx context.Context) (*fetcher.RunResult, error)
	Start(ctx context.Context) (uuid.UUID, error)
	Running() bool
}

// Config controls server behavior.
type Config struct {
	// APIKey, when set, is required on every request except health probes.
	APIKey string
	// RequestTimeout bounds handler execution; sync fetch runs can be slow,
	// so this should be generous.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the fetch pipeline and the report store.
type Server struct {
	router  chi.Router
	runner  Runner
	store   store.Store
	tracker *status.Tracker
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, st store.Store, tracker *status.Tracker, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		runner:  runner,
		store:   st,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/fetch_reports", s.fetchReports)
		r.Post("/fetch_reports_background", s.fetchReportsBackground)
		r.Get("/status", s.getStatus)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fetchReports runs a full fetch synchronously and returns its summary.
func (s *Server) fetchReports(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.Run(r.Context())
	switch {
	case errors.Is(err, fetcher.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// fetchReportsBackground kicks off a run and returns immediately. The run
// keeps the request's values but survives the response being written.
func (s *Server) fetchReportsBackground(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runner.Start(context.WithoutCancel(r.Context()))
	if errors.Is(err, fetcher.ErrAlreadyRunning) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": "started",
	})
}

type statusResponse struct {
	Running bool            `json:"running"`
	LastRun status.Snapshot `json:"last_run"`
	Counts  store.Counts    `json:"database"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read database counts")
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Running: s.runner.Running(),
		LastRun: s.tracker.Snapshot(),
		Counts:  counts,
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSONTo(w, http.StatusForbidden, map[string]string{"error": "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	writeJSONTo(w, code, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSONTo(w http.ResponseWriter, code int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
