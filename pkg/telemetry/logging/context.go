package logging

import (
	"context"
	"log/slog"
)

type contextKey string

// JobIDKey is the attribute and context key for job ids.
const JobIDKey contextKey = "job_id"

// WithJobID returns a context whose log records carry the job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// JobID returns the job id stored in ctx, or "".
func JobID(ctx context.Context) string {
	if id, ok := ctx.Value(JobIDKey).(string); ok {
		return id
	}
	return ""
}

// Handler wraps another handler, masking sensitive attributes and adding the
// context job id.
type Handler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewHandler wraps next. A nil redactor disables masking.
func NewHandler(next slog.Handler, redactor *Redactor) *Handler {
	return &Handler{next: next, redactor: redactor}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	jobID := JobID(ctx)
	if h.redactor == nil && jobID == "" {
		return h.next.Handle(ctx, rec)
	}

	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	hasJobID := false
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == string(JobIDKey) {
			hasJobID = true
		}
		if h.redactor != nil {
			a = h.redactor.Attr(a)
		}
		out.AddAttrs(a)
		return true
	})
	if jobID != "" && !hasJobID {
		out.AddAttrs(slog.String(string(JobIDKey), jobID))
	}
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.redactor != nil {
		masked := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			masked[i] = h.redactor.Attr(a)
		}
		attrs = masked
	}
	return &Handler{next: h.next.WithAttrs(attrs), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), redactor: h.redactor}
}
