package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/health"
)

// ServiceName is reported by /health.
const ServiceName = "ml-service"

// QueueStatus is the part of the job queue the ops endpoints read.
type QueueStatus interface {
	Len(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Dependencies are the components the ops endpoints report on.
type Dependencies struct {
	Queue  QueueStatus
	Health *health.Checker

	// Metrics serves the Prometheus scrape. Nil disables the endpoint.
	Metrics     http.Handler
	MetricsPath string

	LivenessPath  string
	ReadinessPath string

	PolicyDigest string
	Version      string

	// WorkerRunning reports whether the worker loop is active.
	WorkerRunning func() bool

	// TLS serves HTTPS when set.
	TLS *tls.Config

	Logger *slog.Logger
}

// Server is the worker's operational HTTP server.
type Server struct {
	config       *config.ServerConfig
	deps         Dependencies
	logger       *slog.Logger
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	now          func() time.Time
}

// NewServer creates an ops server. Empty paths take the configured defaults.
func NewServer(cfg *config.ServerConfig, deps Dependencies) *Server {
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	if deps.LivenessPath == "" {
		deps.LivenessPath = config.DefaultLivenessPath
	}
	if deps.ReadinessPath == "" {
		deps.ReadinessPath = config.DefaultReadinessPath
	}
	if deps.Health == nil {
		deps.Health = health.New(config.DefaultHealthCheckTimeout)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
		now:    time.Now,
	}
}

// Start listens on the configured address and serves until ctx is cancelled
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	if s.deps.TLS != nil {
		ln = tls.NewListener(ln, s.deps.TLS)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting ops server", "address", ln.Addr().String(), "tls", s.deps.TLS != nil)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		srv := s.httpServer
		s.mu.RUnlock()
		if !running {
			return
		}

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("ops server stopped")
	})

	return shutdownErr
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/queue/status", s.handleQueueStatus)
	mux.Handle(s.deps.LivenessPath, s.deps.Health.LivenessHandler())
	mux.Handle(s.deps.ReadinessPath, s.deps.Health.ReadinessHandler())
	if s.deps.Metrics != nil {
		mux.Handle(s.deps.MetricsPath, s.deps.Metrics)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger, handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger, handler)
	return handler
}

// handleHealth reports service identity, queue reachability and the policy
// digest in effect. It always answers 200; readiness lives on its own path.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	redisConnected := false
	if s.deps.Queue != nil {
		ctx, cancel := context.WithTimeout(r.Context(), config.DefaultHealthCheckTimeout)
		redisConnected = s.deps.Queue.Ping(ctx) == nil
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         ServiceName,
		"version":         s.deps.Version,
		"timestamp":       s.now().UTC().Format(time.RFC3339),
		"redis_connected": redisConnected,
		"policy_digest":   s.deps.PolicyDigest,
		"worker_running":  s.workerRunning(),
	})
}

// handleQueueStatus reports the number of queued envelopes.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "queue not configured"})
		return
	}

	n, err := s.deps.Queue.Len(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "failed to read queue length", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": fmt.Sprintf("queue status error: %v", err),
		})
		return
	}

	status := "stopped"
	if s.workerRunning() {
		status = "running"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_length":  n,
		"timestamp":     s.now().UTC().Format(time.RFC3339),
		"worker_status": status,
	})
}

func (s *Server) workerRunning() bool {
	return s.deps.WorkerRunning != nil && s.deps.WorkerRunning()
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
