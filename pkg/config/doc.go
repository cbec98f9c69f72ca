// Package config provides configuration management for the cat counter worker.
//
// This package loads, validates and stores configuration from a YAML file
// with environment variable overrides. A missing file is not an error: the
// worker runs on defaults plus environment, which suits a container image.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CCC_SECTION_FIELD:
//
//   - CCC_WORKER_POP_TIMEOUT overrides worker.pop_timeout
//   - CCC_AUDIT_SINKS overrides audit.sinks (comma separated)
//   - CCC_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// The deployment variable names REDIS_URL, POLICY_BUNDLE_PATH,
// POLICY_BUNDLE_HMAC_KEY, POLICY_BUNDLE_SIGNATURE, AUDIT_HMAC_KEY,
// SIMULATED_ATTESTATION and IMAGE_DIGEST are also read. When both forms are
// set the CCC_ variable wins.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Secrets
//
// Key fields (policy.hmac_key, audit.hmac_key) may hold ${secret:name}
// references. They are resolved at startup by the secrets manager, not by
// this package.
package config
