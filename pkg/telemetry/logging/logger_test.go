package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

func newTestLogger(t *testing.T, redact bool) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json", RedactSecrets: redact}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return logger, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"bad level", config.LoggingConfig{Level: "verbose", Format: "json"}},
		{"bad format", config.LoggingConfig{Level: "info", Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLogger_RedactsKeyMaterial(t *testing.T) {
	logger, buf := newTestLogger(t, true)

	logger.Info("bundle verified",
		"hmac_key", "super-secret",
		"wrapped_key", "DEV_WRAPPED_KEY_PLACEHOLDER",
		"signature", "abcd",
		"key_id", "DEV-LOCAL-KEY",
		"policy_digest", "feed",
	)

	entry := decodeLine(t, buf)
	for _, k := range []string{"hmac_key", "wrapped_key", "signature"} {
		if entry[k] != Redacted {
			t.Errorf("%s = %v, want %s", k, entry[k], Redacted)
		}
	}
	if entry["key_id"] != "DEV-LOCAL-KEY" {
		t.Errorf("key_id = %v, should not be masked", entry["key_id"])
	}
	if entry["policy_digest"] != "feed" {
		t.Errorf("policy_digest = %v, should not be masked", entry["policy_digest"])
	}
}

func TestLogger_RedactsWithAttrsAndGroups(t *testing.T) {
	logger, buf := newTestLogger(t, true)

	logger.With("audit_hmac_key", "k").Info("x", slog.Group("cfg", slog.String("secret", "s"), slog.Int("n", 1)))

	line := buf.String()
	if strings.Contains(line, `"k"`) || strings.Contains(line, `"s"`) {
		t.Errorf("secret leaked: %s", line)
	}
	if !strings.Contains(line, `"n":1`) {
		t.Errorf("non-sensitive group attr missing: %s", line)
	}
}

func TestLogger_NoRedaction(t *testing.T) {
	logger, buf := newTestLogger(t, false)
	logger.Info("x", "hmac_key", "visible")

	if entry := decodeLine(t, buf); entry["hmac_key"] != "visible" {
		t.Errorf("hmac_key = %v, want visible", entry["hmac_key"])
	}
}

func TestLogger_JobIDFromContext(t *testing.T) {
	logger, buf := newTestLogger(t, true)

	ctx := WithJobID(context.Background(), "job-42")
	logger.InfoContext(ctx, "claimed")

	if entry := decodeLine(t, buf); entry["job_id"] != "job-42" {
		t.Errorf("job_id = %v, want job-42", entry["job_id"])
	}

	buf.Reset()
	logger.InfoContext(ctx, "explicit", "job_id", "other")
	line := buf.String()
	if strings.Count(line, "job_id") != 1 {
		t.Errorf("job_id should appear once: %s", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
