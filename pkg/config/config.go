package config

import "time"

// Config is the root configuration structure for the cat counter worker.
// It contains all configuration sections for the worker loop, the queue and
// job store, policy bundle loading, audit emission, attestation, the ops
// server, telemetry and security.
type Config struct {
	// Worker contains the job loop configuration.
	Worker WorkerConfig `yaml:"worker"`

	// Redis contains the queue and job store connection.
	Redis RedisConfig `yaml:"redis"`

	// Policy contains policy bundle loading configuration.
	Policy PolicyConfig `yaml:"policy"`

	// Audit contains audit emission and sink configuration.
	Audit AuditConfig `yaml:"audit"`

	// Attestation contains the attestation and key-release gate configuration.
	Attestation AttestationConfig `yaml:"attestation"`

	// Server contains the ops HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Telemetry contains observability configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains secret management configuration.
	Security SecurityConfig `yaml:"security"`
}

// WorkerConfig contains configuration for the job loop.
type WorkerConfig struct {
	// QueueKey is the list the worker pops job envelopes from.
	// Default: "ml-jobs"
	QueueKey string `yaml:"queue_key"`

	// PopTimeout bounds each blocking pop so shutdown is observed.
	// Default: 5s
	PopTimeout time.Duration `yaml:"pop_timeout"`

	// ErrorBackoff is the pause after a queue or store error.
	// Default: 1s
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// JobTTL is the expiry applied on every job write.
	// Default: 1h
	JobTTL time.Duration `yaml:"job_ttl"`

	// UploadsDir is the directory uploaded images are resolved against.
	// Default: "/app/uploads"
	UploadsDir string `yaml:"uploads_dir"`

	// InferenceTimeout bounds a single detection call. Zero disables it.
	// Default: 0
	InferenceTimeout time.Duration `yaml:"inference_timeout"`

	// Detector configures the object detector.
	Detector DetectorConfig `yaml:"detector"`
}

// DetectorConfig configures the development mock detector.
type DetectorConfig struct {
	// Latency is the simulated processing time of the mock.
	// Default: 500ms
	Latency time.Duration `yaml:"latency"`

	// Seed seeds the mock's random source. Zero uses the current time.
	Seed int64 `yaml:"seed"`
}

// RedisConfig contains the queue and store connection settings.
type RedisConfig struct {
	// URL is the redis:// connection URL.
	// Default: "redis://localhost:6379"
	URL string `yaml:"url"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// PolicyConfig contains policy bundle loading configuration.
type PolicyConfig struct {
	// BundlePath is the bundle file location. Empty means the built-in default
	// bundle unless a git repository is configured.
	BundlePath string `yaml:"bundle_path"`

	// Git configures loading the bundle from a git repository.
	Git PolicyGitConfig `yaml:"git"`

	// HMACKey is the bundle signing key. Supports ${secret:name} references.
	HMACKey string `yaml:"hmac_key"`

	// Signature is the expected hex HMAC-SHA256 of the raw bundle bytes.
	Signature string `yaml:"signature"`

	// WatchDrift enables drift detection on the bundle file.
	// Default: false
	WatchDrift bool `yaml:"watch_drift"`

	// DriftDebounce is the quiet period before a changed bundle is re-hashed.
	// Default: 200ms
	DriftDebounce time.Duration `yaml:"drift_debounce"`
}

// PolicyGitConfig configures the git bundle source.
type PolicyGitConfig struct {
	// Repository is the remote URL. Empty disables the git source.
	Repository string `yaml:"repository"`

	// Branch is the branch to read from.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the bundle path inside the repository.
	// Default: "policy-bundle.json"
	Path string `yaml:"path"`

	// LocalPath is the clone directory.
	// Default: "data/policy-repo"
	LocalPath string `yaml:"local_path"`
}

// AuditConfig contains audit emission configuration.
type AuditConfig struct {
	// HMACKey signs every audit record. Supports ${secret:name} references.
	// Default: "dev-local-hmac-key"
	HMACKey string `yaml:"hmac_key"`

	// Sinks lists the record destinations.
	// Options: "stdout", "file", "sqlite"
	// Default: ["stdout"]
	Sinks []string `yaml:"sinks"`

	// FilePath is the JSON lines file used by the "file" sink.
	// Default: "data/audit.log"
	FilePath string `yaml:"file_path"`

	// SQLite configures the "sqlite" sink.
	SQLite AuditSQLiteConfig `yaml:"sqlite"`

	// Retention configures pruning of the sqlite sink.
	Retention RetentionConfig `yaml:"retention"`
}

// AuditSQLiteConfig configures the durable audit table.
type AuditSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long writers wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig configures audit record pruning.
type RetentionConfig struct {
	// Enabled turns on the cron-driven pruner.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Days is how long records are kept. Zero keeps them forever.
	// Default: 90
	Days int `yaml:"days"`

	// Schedule is a five-field cron expression.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// MaxRecords caps the table size. Zero means no cap.
	MaxRecords int64 `yaml:"max_records"`
}

// AttestationConfig configures the attestation and key-release gate.
type AttestationConfig struct {
	// Required makes a successful Unlock a precondition of starting the worker.
	// Default: true
	Required bool `yaml:"required"`

	// Simulated marks evidence as produced outside a real enclave.
	// Default: true
	Simulated bool `yaml:"simulated"`

	// ImageDigest identifies the running image.
	// Default: "dev-local"
	ImageDigest string `yaml:"image_digest"`

	// ReplayWindow is how long nonces are remembered. Zero disables replay checks.
	// Default: 5m
	ReplayWindow time.Duration `yaml:"replay_window"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	// Enabled controls whether the ops server is started.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address the server binds.
	// Default: "127.0.0.1:8081"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS serves the ops endpoints over HTTPS when both files are set.
	TLS ServerTLSConfig `yaml:"tls"`
}

// ServerTLSConfig names the ops server certificate. The files are watched and
// reloaded when replaced, so rotated certificates apply without a restart.
type ServerTLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both files are configured.
func (c ServerTLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks key material in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "ccc"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "worker"
	Subsystem string `yaml:"subsystem"`

	// JobDurationBuckets defines histogram buckets for job duration (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30]
	JobDurationBuckets []float64 `yaml:"job_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "confidential-cat-counter"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health/live"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/health/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// Secrets contains secret management configuration.
	Secrets SecretsConfig `yaml:"secrets"`
}

// SecretsConfig configures ${secret:name} resolution.
type SecretsConfig struct {
	// Providers lists the secret providers, consulted in order.
	Providers []SecretProviderConfig `yaml:"providers"`

	// CacheTTL is how long resolved secrets are cached.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SecretProviderConfig configures one secret provider.
type SecretProviderConfig struct {
	// Type is the provider kind.
	// Options: "env", "file"
	Type string `yaml:"type"`

	// Prefix is prepended to secret names for the env provider.
	// Default: "CCC_SECRET_"
	Prefix string `yaml:"prefix"`

	// Path is the secrets directory for the file provider.
	Path string `yaml:"path"`

	// Watch reloads file secrets when they change.
	Watch bool `yaml:"watch"`
}
