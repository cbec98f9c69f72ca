package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jellywish/confidential-cat-counter/pkg/attestation"
	"github.com/jellywish/confidential-cat-counter/pkg/audit"
	"github.com/jellywish/confidential-cat-counter/pkg/audit/retention"
	"github.com/jellywish/confidential-cat-counter/pkg/cli"
	"github.com/jellywish/confidential-cat-counter/pkg/config"
	"github.com/jellywish/confidential-cat-counter/pkg/inference"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
	sectls "github.com/jellywish/confidential-cat-counter/pkg/security/tls"
	"github.com/jellywish/confidential-cat-counter/pkg/server"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/health"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/logging"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/metrics"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/tracing"
	"github.com/jellywish/confidential-cat-counter/pkg/worker"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noServer      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the worker",
	Long: `Start the worker with the specified configuration.

Startup loads the policy bundle, passes the attestation gate when required and
then consumes the job queue until interrupted. A bad bundle signature, an
invalid configuration or a failed attestation aborts startup with exit code 2.

Examples:
  # Start with defaults and environment overrides
  ccc run

  # Start with a config file
  ccc run --config /etc/ccc/config.yaml

  # Load the bundle and pass the gate without consuming jobs
  ccc run --dry-run`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override ops server listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "load bundle and pass attestation without consuming jobs")
	runCmd.Flags().BoolVar(&runFlags.noServer, "no-server", false, "do not start the ops server")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := cli.SetupSignalHandler(slog.Default())
	defer cancel()
	return startWorker(ctx, cmd.ErrOrStderr())
}

// startWorker builds every component and runs until ctx is cancelled or a
// component fails. Progress lines go to out.
func startWorker(ctx context.Context, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := loadConfig(ctx, slog.Default())
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	// Audit lines may go to stdout, so logs always go to stderr.
	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", "invalid logging configuration", err)
	}
	slog.SetDefault(logger)
	fmt.Fprintln(out, "✓ Configuration loaded")

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", "failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	emitter, auditDB, err := newEmitter(cfg, collector, logger)
	if err != nil {
		return err
	}
	defer emitter.Close()
	fmt.Fprintf(out, "✓ Audit emitter ready (sinks: %v)\n", cfg.Audit.Sinks)

	loader, err := newBundleLoader(&cfg.Policy, logger)
	if err != nil {
		return err
	}
	b, digest, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	prov := loader.Provenance()
	collector.SetBundle(digest, string(prov.Origin))
	emitAudit(ctx, logger, emitter, audit.EventPolicyBundleLoaded, map[string]any{
		"policy_digest": digest,
		"version":       b.Version,
		"origin":        string(prov.Origin),
		"location":      prov.Location,
		"signed":        prov.Signed,
	})
	fmt.Fprintf(out, "✓ Policy bundle loaded (digest: %s, origin: %s)\n", digest, prov.Origin)

	if cfg.Attestation.Required {
		if err := unlock(ctx, cfg, digest, emitter, logger); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Attestation verified, data key released")
	} else {
		logger.Warn("attestation gate disabled by configuration")
	}

	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Dry run complete")
		return nil
	}

	if cfg.Policy.WatchDrift {
		stop, err := watchDrift(ctx, cfg, digest, emitter, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if cfg.Audit.Retention.Enabled && auditDB != nil {
		pruner := retention.NewPruner(auditDB, &retention.Config{
			RetentionDays: cfg.Audit.Retention.Days,
			PruneSchedule: cfg.Audit.Retention.Schedule,
			MaxRecords:    cfg.Audit.Retention.MaxRecords,
		})
		if collector != nil {
			pruner.SetMetrics(collector)
		}
		scheduler := retention.NewScheduler(pruner)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewConfigError("audit.retention.schedule", "invalid prune schedule", err)
		}
		defer scheduler.Stop()
		fmt.Fprintln(out, "✓ Audit retention scheduled")
	}

	queue, store, closeRedis, err := redisClients(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()
	fmt.Fprintf(out, "✓ Connected to Redis (queue: %s)\n", cfg.Worker.QueueKey)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("redis", queue.Ping)
	checker.SetInfo("policy_digest", digest)
	checker.SetInfo("version", Version)

	ctrl, err := worker.NewController(worker.ControllerConfig{
		Store:            store,
		Bundle:           b,
		PolicyDigest:     digest,
		Auditor:          emitter,
		Detector:         inference.NewMockDetector(cfg.Worker.Detector.Seed, cfg.Worker.Detector.Latency),
		Metrics:          collector,
		Tracer:           tracer,
		Logger:           logger,
		UploadsDir:       cfg.Worker.UploadsDir,
		JobTTL:           cfg.Worker.JobTTL,
		InferenceTimeout: cfg.Worker.InferenceTimeout,
	})
	if err != nil {
		return err
	}
	w, err := worker.New(queue, ctrl, worker.Options{
		PopTimeout:   cfg.Worker.PopTimeout,
		ErrorBackoff: cfg.Worker.ErrorBackoff,
		Metrics:      collector,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	running := 1

	if cfg.Server.Enabled {
		var metricsHandler http.Handler
		if collector != nil {
			metricsHandler = collector.Handler()
		}
		var tlsConfig *tls.Config
		if cfg.Server.TLS.Enabled() {
			reloader, err := sectls.NewCertificateReloader(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, logger)
			if err != nil {
				return cli.NewConfigError("server.tls", "invalid ops server certificate", err)
			}
			go func() {
				if err := reloader.Watch(ctx); err != nil {
					logger.Error("certificate watcher stopped", "error", err)
				}
			}()
			tlsConfig = reloader.TLSConfig()
		}
		srv := server.NewServer(&cfg.Server, server.Dependencies{
			Queue:         queue,
			Health:        checker,
			Metrics:       metricsHandler,
			MetricsPath:   cfg.Telemetry.Metrics.Path,
			LivenessPath:  cfg.Telemetry.Health.LivenessPath,
			ReadinessPath: cfg.Telemetry.Health.ReadinessPath,
			PolicyDigest:  digest,
			Version:       Version,
			WorkerRunning: w.Running,
			TLS:           tlsConfig,
			Logger:        logger,
		})
		running++
		go func() { errCh <- srv.Start(ctx) }()
		fmt.Fprintf(out, "✓ Ops server listening on %s\n", cfg.Server.ListenAddress)
	}

	go func() { errCh <- w.Run(ctx) }()
	fmt.Fprintln(out, "✓ Worker started")
	logger.Info("worker started",
		"queue", cfg.Worker.QueueKey,
		"policy_digest", digest,
		"attestation_required", cfg.Attestation.Required,
		"simulated", cfg.Attestation.Simulated,
	)

	// The first component to stop takes the other down with it.
	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			logger.Error("component stopped with error", "error", err)
		}
		cancel()
	}

	logger.Info("worker stopped", "processed", w.Processed(), "audit_sequence", emitter.Sequence())
	return firstErr
}

func applyRunFlags(cfg *config.Config) {
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	} else if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if runFlags.noServer {
		cfg.Server.Enabled = false
	}
}

// unlock runs the attestation gate and audits its outcome. Only the key id
// and algorithm are recorded; the wrapped key never leaves this function.
func unlock(ctx context.Context, cfg *config.Config, digest string, emitter *audit.Emitter, logger *slog.Logger) error {
	gate := &attestation.Gate{
		Verifier: attestation.NewReplayGuard(
			attestation.NewDevVerifier(digest),
			cfg.Attestation.ReplayWindow,
		),
		KeyClient: attestation.DevKeyReleaseClient{},
		Options: attestation.Options{
			ImageDigest: cfg.Attestation.ImageDigest,
			Simulated:   cfg.Attestation.Simulated,
		},
		Logger: logger,
	}

	res, err := gate.Unlock(ctx, digest)
	if err != nil {
		return err
	}

	emitAudit(ctx, logger, emitter, audit.EventAttestationVerified, map[string]any{
		"policy_digest": digest,
		"image_digest":  res.Evidence.ImageDigest,
		"nonce":         res.Evidence.Nonce,
		"reason":        res.Reason,
	})
	emitAudit(ctx, logger, emitter, audit.EventDataKeyReleased, map[string]any{
		"key_id":    res.Key.KeyID,
		"algorithm": res.Key.Algorithm,
	})
	return nil
}

// watchDrift starts a DriftWatcher on a file bundle. Git and default bundles
// have no file to watch.
func watchDrift(ctx context.Context, cfg *config.Config, digest string, emitter *audit.Emitter, collector *metrics.Collector, logger *slog.Logger) (func(), error) {
	if _, ok := bundleSource(&cfg.Policy).(*bundle.FileSource); !ok {
		logger.Info("bundle drift watch skipped, bundle is not a local file")
		return func() {}, nil
	}

	dw, err := bundle.NewDriftWatcher(cfg.Policy.BundlePath, digest, cfg.Policy.DriftDebounce, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		err := dw.Watch(ctx, func(d bundle.Drift) {
			collector.RecordBundleDrift()
			emitAudit(ctx, logger, emitter, audit.EventPolicyBundleDrift, map[string]any{
				"path":             d.Path,
				"policy_digest":    d.EffectiveDigest,
				"observed_digest":  d.ObservedDigest,
				"missing":          d.Missing,
				"restart_required": true,
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bundle drift watcher stopped", "error", err)
		}
	}()
	return func() { _ = dw.Stop() }, nil
}

func emitAudit(ctx context.Context, logger *slog.Logger, emitter *audit.Emitter, event string, data map[string]any) {
	if _, err := emitter.Emit(ctx, event, data); err != nil {
		logger.Error("failed to emit audit record", "event", event, "error", err)
	}
}
