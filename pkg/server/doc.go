// Package server provides the worker's operational HTTP server.
//
// The worker has no public API; this server exists for probes, debugging and
// scraping. It binds to loopback by default.
//
// # Endpoints
//
//	GET /health         service identity, queue reachability, policy digest
//	GET /health/live    liveness (process is up)
//	GET /health/ready   readiness (registered checks pass), 503 when degraded
//	GET /queue/status   number of queued job envelopes
//	GET /metrics        Prometheus exposition, when metrics are enabled
//
// Every response carries an X-Request-ID header; a caller-supplied id is
// echoed back.
//
// # Basic Usage
//
//	srv := server.NewServer(&cfg.Server, server.Dependencies{
//	    Queue:         queue,
//	    Health:        checker,
//	    Metrics:       collector.Handler(),
//	    PolicyDigest:  digest,
//	    WorkerRunning: w.Running,
//	})
//	go srv.Start(ctx)
package server
