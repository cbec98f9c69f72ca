// Package logging builds the process logger.
//
// The worker logs through log/slog everywhere. New returns a *slog.Logger
// whose handler is JSON or text per configuration and, when redaction is
// enabled, masks attributes that carry key material before they are written:
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
//	slog.SetDefault(logger)
//
//	logger.Info("bundle verified", "hmac_key", key) // hmac_key=[REDACTED]
//
// The handler also copies the job id stored with WithJobID into every record
// logged with a context, so per-job lines can be correlated without threading
// a logger through each call.
package logging
