package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is the subset of a durable sink the pruner needs.
type Store interface {
	Count(ctx context.Context) (int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOldest(ctx context.Context, keep int64) (int64, error)
}

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep records.
	// 0 keeps records forever.
	RetentionDays int

	// PruneSchedule is a standard cron expression, e.g. "0 3 * * *".
	// Empty disables scheduled pruning.
	PruneSchedule string

	// MaxRecords caps the number of stored records. 0 means unlimited.
	MaxRecords int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
	}
}

// Metrics receives pruning counts. telemetry/metrics.Collector satisfies it.
type Metrics interface {
	RecordAuditPruned(n int64)
}

// Pruner enforces retention on a Store.
type Pruner struct {
	store   Store
	config  *Config
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(store Store, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "audit.retention"),
		now:    time.Now,
	}
}

// SetMetrics reports every completed prune to m.
func (p *Pruner) SetMetrics(m Metrics) {
	p.metrics = m
}

// Prune deletes records older than the retention period, then trims the
// oldest records beyond MaxRecords. It returns the total deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
		p.logger.Debug("pruned records by age",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}

	if p.config.MaxRecords > 0 {
		count, err := p.store.Count(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to count records: %w", err)
		}
		if count > p.config.MaxRecords {
			deleted, err := p.store.DeleteOldest(ctx, p.config.MaxRecords)
			if err != nil {
				return total, fmt.Errorf("prune by count failed: %w", err)
			}
			total += deleted
			p.logger.Debug("pruned records by count",
				"deleted_count", deleted,
				"max_records", p.config.MaxRecords,
			)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordAuditPruned(total)
	}
	if total > 0 {
		p.logger.Info("audit pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}

	return total, nil
}
