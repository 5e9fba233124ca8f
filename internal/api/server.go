package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pitchbook/internal/api/health"
	"pitchbook/internal/metrics"
	"pitchbook/internal/pitchbook"
	"pitchbook/pkg/logger"
)

// Server hosts the analysis API, stream endpoints, and operational probes.
type Server struct {
	httpServer *http.Server
	service    *pitchbook.Service
	health     *health.Handler
	log        *logger.Logger
}

// Config configures the HTTP server.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

func NewServer(cfg Config, service *pitchbook.Service, healthHandler *health.Handler) *Server {
	s := &Server{
		service: service,
		health:  healthHandler,
		log:     logger.Get().With("component", "api_server"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/stream/{id}", s.handleStream)
	mux.HandleFunc("GET /api/ws/{id}", s.handleWebSocket)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/completed", s.handleListCompletedWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/messages", s.handleAppendWorkflowMessage)
	mux.HandleFunc("PATCH /api/workflows/{id}/status", s.handleUpdateWorkflowStatus)

	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	mux.HandleFunc("GET /live", healthHandler.HandleLiveness)
	mux.Handle("GET /metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
