// Package api serves the worker's operational HTTP surface: liveness,
// readiness and Prometheus metrics. The user-facing upload/query API is
// a separate service and not part of this worker.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/metrics"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/vectorindex"
)

// Pinger reports whether the event sink is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexStats exposes index statistics for the readiness payload.
type IndexStats interface {
	Stats() vectorindex.Stats
}

// Server is the ops HTTP server.
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	db         Pinger
	index      IndexStats
	startTime  time.Time
}

// NewServer creates the ops server.
func NewServer(port int, logger *zap.Logger, collector *metrics.Collector,
	db Pinger, index IndexStats) *Server {

	s := &Server{
		logger:    logger,
		db:        db,
		index:     index,
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	payload := map[string]interface{}{"status": "ready"}
	status := http.StatusOK

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			payload["status"] = "not ready"
			payload["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if s.index != nil {
		payload["index"] = s.index.Stats()
	}

	writeJSON(w, status, payload)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
