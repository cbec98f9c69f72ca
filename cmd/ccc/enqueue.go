package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/jellywish/confidential-cat-counter/pkg/cli"
	"github.com/jellywish/confidential-cat-counter/pkg/jobs"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/tracing"
)

var enqueueFlags struct {
	id       string
	filename string
	size     int64
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a job for an uploaded file",
	Long: `Queue a job for a file already present in the uploads directory.

The envelope carries the current trace context, so the worker's spans join the
trace of this command when tracing is enabled.`,
	Example: `  ccc enqueue --filename cat.jpg --size 2048`,
	RunE:    runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueueFlags.id, "id", "", "job id (default: random UUID)")
	enqueueCmd.Flags().StringVar(&enqueueFlags.filename, "filename", "", "uploaded file name (required)")
	enqueueCmd.Flags().Int64Var(&enqueueFlags.size, "size", -1, "declared upload size in bytes (omitted when negative)")
}

// newEnvelope builds a queued job envelope with the trace context of ctx.
func newEnvelope(ctx context.Context, id, filename string, size int64, now time.Time) ([]byte, error) {
	job := &jobs.Job{
		ID:       id,
		Filename: filename,
		Status:   jobs.StatusQueued,
		Extra:    map[string]json.RawMessage{},
	}
	if size >= 0 {
		job.Size = &size
	}

	created, err := json.Marshal(jobs.Timestamp(now))
	if err != nil {
		return nil, err
	}
	job.Extra["createdAt"] = created

	carrier := map[string]string{}
	tracing.InjectToMap(ctx, carrier)
	for k, v := range carrier {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		job.Extra[k] = raw
	}

	return job.Encode()
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	if enqueueFlags.filename == "" {
		return cli.NewConfigError("filename", "--filename is required", nil)
	}
	if filepath.Base(enqueueFlags.filename) != enqueueFlags.filename {
		return cli.NewConfigError("filename", "--filename must be a bare file name", nil)
	}
	id := enqueueFlags.id
	if id == "" {
		id = uuid.NewString()
	}

	ctx := commandContext(cmd)
	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		return err
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", "failed to initialize tracing", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.Start(ctx, "job.enqueue", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	tracing.SetJobAttributes(span, id, string(jobs.StatusQueued))

	envelope, err := newEnvelope(ctx, id, enqueueFlags.filename, enqueueFlags.size, time.Now())
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	queue, _, closeRedis, err := redisClients(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	if err := queue.Push(ctx, envelope); err != nil {
		tracing.SetStatus(span, err)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	n, _ := queue.Len(ctx)
	return writeOutput(cmd, map[string]any{
		"id":           id,
		"queue":        cfg.Worker.QueueKey,
		"queue_length": n,
		"trace_id":     tracing.TraceID(ctx),
	})
}
