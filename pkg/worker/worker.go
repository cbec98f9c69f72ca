package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
	"github.com/jellywish/confidential-cat-counter/pkg/state"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/metrics"
)

// Options configures the Worker loop.
type Options struct {
	// PopTimeout bounds each blocking pop.
	PopTimeout time.Duration

	// ErrorBackoff is slept after a queue error or a requeue.
	ErrorBackoff time.Duration

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Worker pops envelopes and hands them to a Controller, one at a time.
type Worker struct {
	queue        state.Queue
	controller   *Controller
	popTimeout   time.Duration
	errorBackoff time.Duration
	metrics      *metrics.Collector
	logger       *slog.Logger

	processed atomic.Int64
	running   atomic.Bool
}

// New creates a Worker.
func New(queue state.Queue, controller *Controller, opts Options) (*Worker, error) {
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if controller == nil {
		return nil, errors.New("controller cannot be nil")
	}

	if opts.PopTimeout <= 0 {
		opts.PopTimeout = config.DefaultPopTimeout
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = config.DefaultErrorBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:        queue,
		controller:   controller,
		popTimeout:   opts.PopTimeout,
		errorBackoff: opts.ErrorBackoff,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "worker"),
	}, nil
}

// Run processes jobs until ctx is cancelled. Cancellation is only observed
// between jobs; the job in progress always reaches a terminal state first.
// Queue errors are logged and retried after the backoff.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker is already running")
	}
	defer w.running.Store(false)

	w.logger.Info("worker started",
		"pop_timeout", w.popTimeout,
		"error_backoff", w.errorBackoff,
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", "processed", w.processed.Load())
			return nil
		}

		envelope, err := w.queue.Pop(ctx, w.popTimeout)
		if errors.Is(err, state.ErrEmpty) {
			w.refreshQueueLength(ctx)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("failed to pop job", "error", err)
			w.metrics.RecordQueueError("pop")
			w.sleep(ctx, w.errorBackoff)
			continue
		}

		out := w.controller.Process(context.WithoutCancel(ctx), envelope)
		w.processed.Add(1)

		if out.Kind == OutcomeRetry {
			w.requeue(ctx, envelope, out.JobID)
			w.sleep(ctx, w.errorBackoff)
		}
		w.refreshQueueLength(ctx)
	}
}

// Processed returns the number of envelopes handed to the controller.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// Running reports whether Run is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

func (w *Worker) requeue(ctx context.Context, envelope []byte, jobID string) {
	if err := w.queue.Requeue(context.WithoutCancel(ctx), envelope); err != nil {
		w.logger.Error("failed to requeue job, envelope dropped", "job_id", jobID, "error", err)
		w.metrics.RecordQueueError("requeue")
		return
	}
	w.metrics.RecordRequeue()
	w.logger.Warn("job requeued after store error", "job_id", jobID)
}

func (w *Worker) refreshQueueLength(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := w.queue.Len(ctx)
	if err != nil {
		w.logger.Debug("failed to read queue length", "error", err)
		w.metrics.RecordQueueError("len")
		return
	}
	w.metrics.SetQueueLength(n)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
