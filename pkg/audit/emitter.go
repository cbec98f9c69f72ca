package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/canonical"
)

// Well-known event names.
const (
	EventInputPolicyDecision  = "input_policy_decision"
	EventOutputPolicyDecision = "output_policy_decision"
	EventPolicyBundleLoaded   = "policy_bundle_loaded"
	EventPolicyBundleDrift    = "policy_bundle_drift"
	EventAttestationVerified  = "attestation_verified"
	EventDataKeyReleased      = "data_key_released"
)

// Metrics receives emitter counters. telemetry/metrics.Collector satisfies it.
type Metrics interface {
	RecordAuditEmitted(event string)
	RecordAuditSinkError(sink string)
}

// Config configures an Emitter.
type Config struct {
	// Key is the HMAC-SHA256 signing key.
	Key []byte

	// Simulated is stamped on every record.
	Simulated bool

	// Sequence is the counter to draw from. Nil creates a fresh one.
	Sequence *Sequence

	Sink    Sink
	Metrics Metrics
	Logger  *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Emitter signs records and publishes them to a Sink.
type Emitter struct {
	key       []byte
	simulated bool
	seq       *Sequence
	sink      Sink
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewEmitter creates an Emitter. A signing key is required.
func NewEmitter(cfg Config) (*Emitter, error) {
	if len(cfg.Key) == 0 {
		return nil, errors.New("audit signing key cannot be empty")
	}
	if cfg.Sink == nil {
		return nil, errors.New("audit sink cannot be nil")
	}

	seq := cfg.Sequence
	if seq == nil {
		seq = &Sequence{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Emitter{
		key:       cfg.Key,
		simulated: cfg.Simulated,
		seq:       seq,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		logger:    logger.With("component", "audit.emitter"),
		now:       now,
	}, nil
}

// Emit builds, signs and publishes a record. The only error returned is a
// failure to canonicalize data, in which case no sequence number is used.
// Sink failures are logged and counted.
func (e *Emitter) Emit(ctx context.Context, event string, data map[string]any) (Record, error) {
	payload := make(map[string]any, len(data))
	for k, v := range data {
		if reserved(k) {
			e.logger.Warn("audit data key shadows a reserved field, dropping it",
				"event", event,
				"key", k,
			)
			continue
		}
		payload[k] = v
	}

	if _, err := canonical.Marshal(payload); err != nil {
		return Record{}, fmt.Errorf("audit data for %q is not serializable: %w", event, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := Record{
		Event:     event,
		Timestamp: e.now().Unix(),
		Simulated: e.simulated,
		Sequence:  e.seq.Next(),
		Data:      payload,
	}

	sig, err := Sign(r, e.key)
	if err != nil {
		e.logger.Error("failed to sign audit record", "event", event, "sequence", r.Sequence, "error", err)
		return Record{}, err
	}
	r.Signature = sig

	if err := e.sink.Publish(ctx, r); err != nil {
		var sinkErr *SinkError
		name := fmt.Sprintf("%T", e.sink)
		if errors.As(err, &sinkErr) {
			name = sinkErr.Sink
		}
		e.logger.Error("failed to publish audit record",
			"event", event,
			"sequence", r.Sequence,
			"sink", name,
			"error", err,
		)
		if e.metrics != nil {
			e.metrics.RecordAuditSinkError(name)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordAuditEmitted(event)
	}

	return r, nil
}

// Sequence returns the last sequence number used.
func (e *Emitter) Sequence() uint64 {
	return e.seq.Current()
}

// Close closes the sink.
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink.Close()
}
