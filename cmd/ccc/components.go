package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
	"github.com/jellywish/confidential-cat-counter/pkg/audit/sink"
	"github.com/jellywish/confidential-cat-counter/pkg/cli"
	"github.com/jellywish/confidential-cat-counter/pkg/config"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
	"github.com/jellywish/confidential-cat-counter/pkg/security/secrets"
	"github.com/jellywish/confidential-cat-counter/pkg/state"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/metrics"
)

// loadConfig reads cfgFile with environment overrides and resolves secret
// references in the signing keys and the bundle signature.
func loadConfig(ctx context.Context, logger *slog.Logger) (*config.Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", "failed to load config", err)
	}

	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets, logger)
	if err != nil {
		return nil, cli.NewConfigError("security.secrets", "invalid secrets configuration", err)
	}
	defer mgr.Close()

	if err := mgr.ResolveFields(ctx, &cfg.Policy.HMACKey, &cfg.Policy.Signature, &cfg.Audit.HMACKey); err != nil {
		return nil, cli.NewConfigError("security.secrets", "failed to resolve secrets", err)
	}
	return cfg, nil
}

// bundleSource returns the configured bundle source, or nil when neither a
// file nor a repository is configured.
func bundleSource(cfg *config.PolicyConfig) bundle.Source {
	switch {
	case cfg.Git.Repository != "":
		return &bundle.GitSource{
			Repository: cfg.Git.Repository,
			Branch:     cfg.Git.Branch,
			Path:       cfg.Git.Path,
			LocalPath:  cfg.Git.LocalPath,
			Depth:      1,
			MaxSize:    bundle.DefaultMaxBundleSize,
		}
	case cfg.BundlePath != "":
		return bundle.NewFileSource(cfg.BundlePath)
	default:
		return nil
	}
}

// newBundleLoader builds a loader over the configured source.
func newBundleLoader(cfg *config.PolicyConfig, logger *slog.Logger) (*bundle.Loader, error) {
	loader, err := bundle.NewLoader(bundle.Options{
		Source:    bundleSource(cfg),
		HMACKey:   []byte(cfg.HMACKey),
		Signature: cfg.Signature,
		Logger:    logger,
	})
	if err != nil {
		return nil, cli.NewConfigError("policy.signature", "invalid bundle signing configuration", err)
	}
	return loader, nil
}

// auditSinks opens every configured sink. The SQLite sink, when configured,
// is also returned on its own so retention can prune it.
func auditSinks(cfg *config.AuditConfig) (audit.Sink, *sink.SQLiteSink, error) {
	var (
		opened []audit.Sink
		db     *sink.SQLiteSink
	)
	closeAll := func() {
		for _, s := range opened {
			_ = s.Close()
		}
	}

	for _, name := range cfg.Sinks {
		switch name {
		case "stdout":
			opened = append(opened, sink.NewWriterSink(os.Stdout))
		case "file":
			fs, err := sink.NewFileSink(cfg.FilePath)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			opened = append(opened, fs)
		case "sqlite":
			s, err := sink.NewSQLiteSink(&sink.SQLiteConfig{
				Path:        cfg.SQLite.Path,
				WALMode:     cfg.SQLite.WALMode,
				BusyTimeout: cfg.SQLite.BusyTimeout,
			})
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			opened = append(opened, s)
			db = s
		default:
			closeAll()
			return nil, nil, cli.NewConfigError("audit.sinks", fmt.Sprintf("unknown sink %q", name), nil)
		}
	}

	switch len(opened) {
	case 0:
		return sink.NewWriterSink(os.Stdout), nil, nil
	case 1:
		return opened[0], db, nil
	default:
		return sink.NewMultiSink(opened...), db, nil
	}
}

// newEmitter opens the audit sinks and returns a signing emitter over them.
func newEmitter(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) (*audit.Emitter, *sink.SQLiteSink, error) {
	s, db, err := auditSinks(&cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	emitter, err := audit.NewEmitter(audit.Config{
		Key:       []byte(cfg.Audit.HMACKey),
		Simulated: cfg.Attestation.Simulated,
		Sink:      s,
		Metrics:   auditMetrics(collector),
		Logger:    logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, nil, cli.NewConfigError("audit.hmac_key", "invalid audit configuration", err)
	}
	return emitter, db, nil
}

// auditMetrics keeps a nil collector from becoming a non-nil interface.
func auditMetrics(c *metrics.Collector) audit.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// redisClients connects the queue and the job store.
func redisClients(ctx context.Context, cfg *config.Config) (*state.RedisQueue, *state.RedisStore, func() error, error) {
	client, err := state.NewRedisClient(state.RedisConfig{
		URL:         cfg.Redis.URL,
		QueueKey:    cfg.Worker.QueueKey,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return nil, nil, nil, cli.NewConfigError("redis.url", "invalid redis url", err)
	}
	queue := state.NewRedisQueue(client, cfg.Worker.QueueKey)
	if err := queue.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.URL, err)
	}
	return queue, state.NewRedisStore(client), client.Close, nil
}

