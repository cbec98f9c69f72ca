// Package health implements the worker's liveness and readiness probes.
//
// Components register checks by name; the run command registers "redis"
// (a PING against the queue connection) and records the effective policy
// digest with SetInfo. Readiness runs all checks concurrently, each bounded
// by the configured timeout, and answers 503 if any fails.
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("redis", queue.Ping)
//	mux.Handle("/health/ready", checker.ReadinessHandler())
package health
