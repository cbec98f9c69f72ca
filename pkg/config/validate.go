package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "worker.pop_timeout").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateWorker(&cfg.Worker)...)
	errs = append(errs, validateRedis(&cfg.Redis)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateAttestation(&cfg.Attestation)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateWorker(cfg *WorkerConfig) []FieldError {
	var errs []FieldError

	if cfg.QueueKey == "" {
		errs = append(errs, FieldError{Field: "worker.queue_key", Message: "queue key is required"})
	}
	if cfg.PopTimeout <= 0 {
		errs = append(errs, FieldError{Field: "worker.pop_timeout", Message: "pop timeout must be positive"})
	}
	if cfg.ErrorBackoff < 0 {
		errs = append(errs, FieldError{Field: "worker.error_backoff", Message: "error backoff cannot be negative"})
	}
	if cfg.JobTTL <= 0 {
		errs = append(errs, FieldError{Field: "worker.job_ttl", Message: "job TTL must be positive"})
	}
	if cfg.UploadsDir == "" {
		errs = append(errs, FieldError{Field: "worker.uploads_dir", Message: "uploads directory is required"})
	}
	if cfg.InferenceTimeout < 0 {
		errs = append(errs, FieldError{Field: "worker.inference_timeout", Message: "inference timeout cannot be negative"})
	}
	if cfg.Detector.Latency < 0 {
		errs = append(errs, FieldError{Field: "worker.detector.latency", Message: "detector latency cannot be negative"})
	}

	return errs
}

func validateRedis(cfg *RedisConfig) []FieldError {
	var errs []FieldError

	u, err := url.Parse(cfg.URL)
	if cfg.URL == "" || err != nil {
		errs = append(errs, FieldError{Field: "redis.url", Message: fmt.Sprintf("invalid redis URL %q", cfg.URL)})
	} else if u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix" {
		errs = append(errs, FieldError{
			Field:   "redis.url",
			Message: fmt.Sprintf("unsupported scheme %q: must be 'redis', 'rediss' or 'unix'", u.Scheme),
		})
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	// A key without a signature (or the reverse) would silently skip verification.
	if (cfg.HMACKey == "") != (cfg.Signature == "") {
		errs = append(errs, FieldError{
			Field:   "policy.signature",
			Message: "hmac_key and signature must be configured together",
		})
	}
	if cfg.BundlePath != "" && cfg.Git.Repository != "" {
		errs = append(errs, FieldError{
			Field:   "policy.git.repository",
			Message: "bundle_path and git.repository are mutually exclusive",
		})
	}
	if cfg.WatchDrift && cfg.BundlePath == "" {
		errs = append(errs, FieldError{
			Field:   "policy.watch_drift",
			Message: "drift watching requires bundle_path",
		})
	}
	if cfg.Git.Repository != "" && cfg.Git.Path == "" {
		errs = append(errs, FieldError{Field: "policy.git.path", Message: "git path is required"})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if cfg.HMACKey == "" {
		errs = append(errs, FieldError{Field: "audit.hmac_key", Message: "audit HMAC key is required"})
	}
	if len(cfg.Sinks) == 0 {
		errs = append(errs, FieldError{Field: "audit.sinks", Message: "at least one sink is required"})
	}

	validSinks := map[string]bool{"stdout": true, "file": true, "sqlite": true}
	hasSQLite := false
	for i, name := range cfg.Sinks {
		if !validSinks[name] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("audit.sinks[%d]", i),
				Message: fmt.Sprintf("invalid sink %q: must be 'stdout', 'file' or 'sqlite'", name),
			})
		}
		if name == "sqlite" {
			hasSQLite = true
		}
	}

	if cfg.Retention.Enabled {
		if !hasSQLite {
			errs = append(errs, FieldError{
				Field:   "audit.retention.enabled",
				Message: "retention requires the sqlite sink",
			})
		}
		if cfg.Retention.Days < 0 {
			errs = append(errs, FieldError{Field: "audit.retention.days", Message: "retention days cannot be negative"})
		}
		if cfg.Retention.MaxRecords < 0 {
			errs = append(errs, FieldError{Field: "audit.retention.max_records", Message: "max records cannot be negative"})
		}
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Retention.Schedule, err),
			})
		}
	}

	return errs
}

func validateAttestation(cfg *AttestationConfig) []FieldError {
	var errs []FieldError

	if cfg.ImageDigest == "" {
		errs = append(errs, FieldError{Field: "attestation.image_digest", Message: "image digest is required"})
	}
	if cfg.ReplayWindow < 0 {
		errs = append(errs, FieldError{Field: "attestation.replay_window", Message: "replay window cannot be negative"})
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs = append(errs, FieldError{Field: "server.tls", Message: "cert_file and key_file must be set together"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	// Validate tracing configuration
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never' or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.LivenessPath == cfg.Health.ReadinessPath {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.readiness_path",
			Message: "liveness and readiness paths must differ",
		})
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	for i, p := range cfg.Secrets.Providers {
		field := fmt.Sprintf("security.secrets.providers[%d]", i)
		switch p.Type {
		case "env":
		case "file":
			if p.Path == "" {
				errs = append(errs, FieldError{Field: field + ".path", Message: "path is required for file provider"})
			}
		default:
			errs = append(errs, FieldError{
				Field:   field + ".type",
				Message: fmt.Sprintf("invalid provider type %q: must be 'env' or 'file'", p.Type),
			})
		}
	}

	return errs
}
