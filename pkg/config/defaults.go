package config

import "time"

// Default values for configuration fields.
const (
	// Worker defaults
	DefaultQueueKey         = "ml-jobs"
	DefaultPopTimeout       = 5 * time.Second
	DefaultErrorBackoff     = time.Second
	DefaultJobTTL           = time.Hour
	DefaultUploadsDir       = "/app/uploads"
	DefaultDetectorLatency  = 500 * time.Millisecond
	DefaultRedisURL         = "redis://localhost:6379"
	DefaultRedisDialTimeout = 5 * time.Second

	// Policy defaults
	DefaultPolicyGitBranch     = "main"
	DefaultPolicyGitPath       = "policy-bundle.json"
	DefaultPolicyGitLocalPath  = "data/policy-repo"
	DefaultPolicyDriftDebounce = 200 * time.Millisecond

	// Audit defaults
	DefaultAuditHMACKey           = "dev-local-hmac-key"
	DefaultAuditSink              = "stdout"
	DefaultAuditFilePath          = "data/audit.log"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditSQLiteWALMode     = true
	DefaultAuditSQLiteBusyTimeout = 5 * time.Second
	DefaultRetentionDays          = 90
	DefaultRetentionSchedule      = "0 3 * * *"

	// Attestation defaults
	DefaultAttestationRequired  = true
	DefaultAttestationSimulated = true
	DefaultImageDigest          = "dev-local"
	DefaultReplayWindow         = 5 * time.Minute

	// Server defaults
	DefaultServerEnabled   = true
	DefaultListenAddress   = "127.0.0.1:8081"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingRedactSecrets = true
	DefaultMetricsEnabled       = true
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "ccc"
	DefaultMetricsSubsystem     = "worker"
	DefaultTracingSampler       = "ratio"
	DefaultTracingSampleRatio   = 1.0
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingServiceName   = "confidential-cat-counter"
	DefaultTracingInsecure      = true
	DefaultTracingTimeout       = 10 * time.Second
	DefaultLivenessPath         = "/health/live"
	DefaultReadinessPath        = "/health/ready"
	DefaultHealthCheckTimeout   = 2 * time.Second

	// Security defaults
	DefaultSecretsCacheTTL  = 5 * time.Minute
	DefaultSecretsEnvPrefix = "CCC_SECRET_"
)

// DefaultJobDurationBuckets are the default histogram buckets for job duration.
var DefaultJobDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Default returns a configuration with every default applied, including the
// boolean fields whose default is true. YAML is decoded on top of it so an
// absent boolean keeps its default while an explicit false is honoured.
func Default() *Config {
	cfg := &Config{}
	cfg.Audit.SQLite.WALMode = DefaultAuditSQLiteWALMode
	cfg.Attestation.Required = DefaultAttestationRequired
	cfg.Attestation.Simulated = DefaultAttestationSimulated
	cfg.Server.Enabled = DefaultServerEnabled
	cfg.Telemetry.Logging.RedactSecrets = DefaultLoggingRedactSecrets
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Worker defaults
	if cfg.Worker.QueueKey == "" {
		cfg.Worker.QueueKey = DefaultQueueKey
	}
	if cfg.Worker.PopTimeout == 0 {
		cfg.Worker.PopTimeout = DefaultPopTimeout
	}
	if cfg.Worker.ErrorBackoff == 0 {
		cfg.Worker.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.Worker.JobTTL == 0 {
		cfg.Worker.JobTTL = DefaultJobTTL
	}
	if cfg.Worker.UploadsDir == "" {
		cfg.Worker.UploadsDir = DefaultUploadsDir
	}
	if cfg.Worker.Detector.Latency == 0 {
		cfg.Worker.Detector.Latency = DefaultDetectorLatency
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = DefaultRedisURL
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}

	// Policy defaults
	if cfg.Policy.Git.Branch == "" {
		cfg.Policy.Git.Branch = DefaultPolicyGitBranch
	}
	if cfg.Policy.Git.Path == "" {
		cfg.Policy.Git.Path = DefaultPolicyGitPath
	}
	if cfg.Policy.Git.LocalPath == "" {
		cfg.Policy.Git.LocalPath = DefaultPolicyGitLocalPath
	}
	if cfg.Policy.DriftDebounce == 0 {
		cfg.Policy.DriftDebounce = DefaultPolicyDriftDebounce
	}

	// Audit defaults
	if cfg.Audit.HMACKey == "" {
		cfg.Audit.HMACKey = DefaultAuditHMACKey
	}
	if len(cfg.Audit.Sinks) == 0 {
		cfg.Audit.Sinks = []string{DefaultAuditSink}
	}
	if cfg.Audit.FilePath == "" {
		cfg.Audit.FilePath = DefaultAuditFilePath
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditSQLiteBusyTimeout
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultRetentionDays
	}
	if cfg.Audit.Retention.Schedule == "" {
		cfg.Audit.Retention.Schedule = DefaultRetentionSchedule
	}

	// Attestation defaults
	if cfg.Attestation.ImageDigest == "" {
		cfg.Attestation.ImageDigest = DefaultImageDigest
	}
	if cfg.Attestation.ReplayWindow == 0 {
		cfg.Attestation.ReplayWindow = DefaultReplayWindow
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)

	// Security defaults
	if cfg.Security.Secrets.CacheTTL == 0 {
		cfg.Security.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}
	for i := range cfg.Security.Secrets.Providers {
		p := &cfg.Security.Secrets.Providers[i]
		if p.Type == "env" && p.Prefix == "" {
			p.Prefix = DefaultSecretsEnvPrefix
		}
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.JobDurationBuckets) == 0 {
		t.Metrics.JobDurationBuckets = append([]float64(nil), DefaultJobDurationBuckets...)
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
