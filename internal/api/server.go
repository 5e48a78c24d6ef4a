// Package api exposes the operational HTTP interface for the harvester.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/metrics"
)

// RunLog keeps recent run summaries in memory for the ops endpoints.
type RunLog struct {
	mu        sync.RWMutex
	summaries []harvester.RunSummary
	limit     int
}

// NewRunLog creates a log bounded to the given number of runs.
func NewRunLog(limit int) *RunLog {
	if limit <= 0 {
		limit = 32
	}
	return &RunLog{limit: limit}
}

// Record appends a finished run, evicting the oldest past the bound.
func (l *RunLog) Record(summary harvester.RunSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summaries = append(l.summaries, summary)
	if len(l.summaries) > l.limit {
		l.summaries = l.summaries[len(l.summaries)-l.limit:]
	}
}

// Latest returns the most recent run summary.
func (l *RunLog) Latest() (harvester.RunSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.summaries) == 0 {
		return harvester.RunSummary{}, false
	}
	return l.summaries[len(l.summaries)-1], true
}

// All returns the recorded summaries, newest last.
func (l *RunLog) All() []harvester.RunSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]harvester.RunSummary, len(l.summaries))
	copy(out, l.summaries)
	return out
}

// Server wires HTTP handlers to the run log and metrics registry.
type Server struct {
	router chi.Router
	runs   *RunLog
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runs *RunLog, logger *zap.Logger) *Server {
	metrics.Init()
	s := &Server{runs: runs, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/latest", s.latestRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": s.runs.All()})
}

func (s *Server) latestRun(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.runs.Latest()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
