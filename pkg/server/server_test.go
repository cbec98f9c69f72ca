package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
	"github.com/jellywish/confidential-cat-counter/pkg/state"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/health"
)

type brokenQueue struct{}

func (brokenQueue) Len(context.Context) (int64, error) { return 0, errors.New("connection refused") }
func (brokenQueue) Ping(context.Context) error         { return errors.New("connection refused") }

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Enabled:         true,
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func get(t *testing.T, h http.Handler, path string) (*http.Response, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	resp := rec.Result()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode %s body: %v", path, err)
		}
	}
	return resp, body
}

func TestServer_Health(t *testing.T) {
	queue := state.NewMemoryQueue()
	srv := NewServer(testServerConfig(), Dependencies{
		Queue:         queue,
		PolicyDigest:  "abc123",
		Version:       "1.2.3",
		WorkerRunning: func() bool { return true },
	})

	resp, body := get(t, srv.Handler(), "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "healthy" || body["service"] != ServiceName {
		t.Errorf("body = %v", body)
	}
	if body["policy_digest"] != "abc123" || body["redis_connected"] != true || body["worker_running"] != true {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestServer_HealthQueueDown(t *testing.T) {
	srv := NewServer(testServerConfig(), Dependencies{Queue: brokenQueue{}})

	resp, body := get(t, srv.Handler(), "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["redis_connected"] != false {
		t.Errorf("redis_connected = %v, want false", body["redis_connected"])
	}
}

func TestServer_QueueStatus(t *testing.T) {
	queue := state.NewMemoryQueue()
	for i := 0; i < 3; i++ {
		_ = queue.Push(context.Background(), []byte(`{"id":"x"}`))
	}

	tests := []struct {
		name       string
		queue      QueueStatus
		wantStatus int
		wantLength float64
	}{
		{"reachable", queue, http.StatusOK, 3},
		{"unreachable", brokenQueue{}, http.StatusInternalServerError, 0},
		{"not configured", nil, http.StatusServiceUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(testServerConfig(), Dependencies{Queue: tt.queue})
			resp, body := get(t, srv.Handler(), "/queue/status")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if body["queue_length"] != tt.wantLength {
					t.Errorf("queue_length = %v, want %v", body["queue_length"], tt.wantLength)
				}
				if body["worker_status"] != "stopped" {
					t.Errorf("worker_status = %v, want stopped", body["worker_status"])
				}
			} else if body["error"] == nil {
				t.Errorf("missing error in %v", body)
			}
		})
	}
}

func TestServer_ProbesAndMetrics(t *testing.T) {
	checker := health.New(time.Second)
	checker.RegisterCheck("redis", func(context.Context) error { return errors.New("down") })

	srv := NewServer(testServerConfig(), Dependencies{
		Health: checker,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ccc_worker_jobs_total 0\n")
		}),
	})
	h := srv.Handler()

	if resp, _ := get(t, h, config.DefaultLivenessPath); resp.StatusCode != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", resp.StatusCode)
	}
	if resp, _ := get(t, h, config.DefaultReadinessPath); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", resp.StatusCode)
	}

	resp, _ := get(t, h, config.DefaultMetricsPath)
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "ccc_worker_jobs_total") {
		t.Errorf("metrics body = %q", data)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	srv := NewServer(testServerConfig(), Dependencies{})
	if resp, _ := get(t, srv.Handler(), "/metrics"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := NewServer(testServerConfig(), Dependencies{Queue: state.NewMemoryQueue()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queue/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServer_RequestIDEchoed(t *testing.T) {
	srv := NewServer(testServerConfig(), Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-1" {
		t.Errorf("request id = %q, want req-1", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(slogDiscard(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := NewServer(testServerConfig(), Dependencies{Queue: state.NewMemoryQueue()})
	testStartAndShutdown(t, srv, http.DefaultClient, "http")
}

func TestServer_StartTLS(t *testing.T) {
	ts := httptest.NewUnstartedServer(http.NotFoundHandler())
	ts.StartTLS()
	defer ts.Close()

	srv := NewServer(testServerConfig(), Dependencies{
		Queue: state.NewMemoryQueue(),
		TLS:   &tls.Config{Certificates: ts.TLS.Certificates},
	})
	testStartAndShutdown(t, srv, ts.Client(), "https")
}

func testStartAndShutdown(t *testing.T, srv *Server, client *http.Client, scheme string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Fatal("server not running")
	}

	resp, err := client.Get(scheme + "://" + srv.Addr() + "/queue/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	if srv.IsRunning() {
		t.Error("server still running after shutdown")
	}
}
