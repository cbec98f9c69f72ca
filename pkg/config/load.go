package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "CCC_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path or a file that does not exist yields the defaults, so the
// worker can run from environment variables alone.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CCC_SECTION_FIELD (e.g., CCC_WORKER_POP_TIMEOUT). The variable
// names used by the containerised deployment (REDIS_URL, POLICY_BUNDLE_PATH,
// AUDIT_HMAC_KEY and friends) are honoured too, with CCC_ names taking
// precedence over them.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Deployment variable names
	envString("REDIS_URL", &cfg.Redis.URL)
	envString("POLICY_BUNDLE_PATH", &cfg.Policy.BundlePath)
	envString("POLICY_BUNDLE_HMAC_KEY", &cfg.Policy.HMACKey)
	envString("POLICY_BUNDLE_SIGNATURE", &cfg.Policy.Signature)
	envString("AUDIT_HMAC_KEY", &cfg.Audit.HMACKey)
	envBool("SIMULATED_ATTESTATION", &cfg.Attestation.Simulated)
	envString("IMAGE_DIGEST", &cfg.Attestation.ImageDigest)

	// Worker overrides
	envString(EnvPrefix+"WORKER_QUEUE_KEY", &cfg.Worker.QueueKey)
	envDuration(EnvPrefix+"WORKER_POP_TIMEOUT", &cfg.Worker.PopTimeout)
	envDuration(EnvPrefix+"WORKER_ERROR_BACKOFF", &cfg.Worker.ErrorBackoff)
	envDuration(EnvPrefix+"WORKER_JOB_TTL", &cfg.Worker.JobTTL)
	envString(EnvPrefix+"WORKER_UPLOADS_DIR", &cfg.Worker.UploadsDir)
	envDuration(EnvPrefix+"WORKER_INFERENCE_TIMEOUT", &cfg.Worker.InferenceTimeout)
	envDuration(EnvPrefix+"WORKER_DETECTOR_LATENCY", &cfg.Worker.Detector.Latency)
	envInt64(EnvPrefix+"WORKER_DETECTOR_SEED", &cfg.Worker.Detector.Seed)

	// Redis overrides
	envString(EnvPrefix+"REDIS_URL", &cfg.Redis.URL)
	envDuration(EnvPrefix+"REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout)

	// Policy overrides
	envString(EnvPrefix+"POLICY_BUNDLE_PATH", &cfg.Policy.BundlePath)
	envString(EnvPrefix+"POLICY_HMAC_KEY", &cfg.Policy.HMACKey)
	envString(EnvPrefix+"POLICY_SIGNATURE", &cfg.Policy.Signature)
	envBool(EnvPrefix+"POLICY_WATCH_DRIFT", &cfg.Policy.WatchDrift)
	envString(EnvPrefix+"POLICY_GIT_REPOSITORY", &cfg.Policy.Git.Repository)
	envString(EnvPrefix+"POLICY_GIT_BRANCH", &cfg.Policy.Git.Branch)
	envString(EnvPrefix+"POLICY_GIT_PATH", &cfg.Policy.Git.Path)
	envString(EnvPrefix+"POLICY_GIT_LOCAL_PATH", &cfg.Policy.Git.LocalPath)

	// Audit overrides
	envString(EnvPrefix+"AUDIT_HMAC_KEY", &cfg.Audit.HMACKey)
	if val := os.Getenv(EnvPrefix + "AUDIT_SINKS"); val != "" {
		cfg.Audit.Sinks = splitList(val)
	}
	envString(EnvPrefix+"AUDIT_FILE_PATH", &cfg.Audit.FilePath)
	envString(EnvPrefix+"AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	envBool(EnvPrefix+"AUDIT_RETENTION_ENABLED", &cfg.Audit.Retention.Enabled)
	envInt(EnvPrefix+"AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)
	envString(EnvPrefix+"AUDIT_RETENTION_SCHEDULE", &cfg.Audit.Retention.Schedule)

	// Attestation overrides
	envBool(EnvPrefix+"ATTESTATION_REQUIRED", &cfg.Attestation.Required)
	envBool(EnvPrefix+"ATTESTATION_SIMULATED", &cfg.Attestation.Simulated)
	envString(EnvPrefix+"ATTESTATION_IMAGE_DIGEST", &cfg.Attestation.ImageDigest)
	envDuration(EnvPrefix+"ATTESTATION_REPLAY_WINDOW", &cfg.Attestation.ReplayWindow)

	// Server overrides
	envBool(EnvPrefix+"SERVER_ENABLED", &cfg.Server.Enabled)
	envString(EnvPrefix+"SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envString(EnvPrefix+"SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString(EnvPrefix+"SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)

	// Telemetry overrides
	envString(EnvPrefix+"TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString(EnvPrefix+"TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool(EnvPrefix+"TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool(EnvPrefix+"TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString(EnvPrefix+"TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(name string, dst *int64) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
