package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
	"github.com/jellywish/confidential-cat-counter/pkg/audit/sink"
)

const testAuditKey = "audit-test-key"

// writeAuditLog emits n records through a file sink and returns the path.
func writeAuditLog(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := sink.NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink() failed: %v", err)
	}
	emitTestRecords(t, fs, n)
	return path
}

func emitTestRecords(t *testing.T, s audit.Sink, n int) {
	t.Helper()
	emitter, err := audit.NewEmitter(audit.Config{Key: []byte(testAuditKey), Simulated: true, Sink: s})
	if err != nil {
		t.Fatalf("NewEmitter() failed: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := emitter.Emit(context.Background(), audit.EventInputPolicyDecision, map[string]any{
			"job_id": "job-" + string(rune('a'+i)),
		}); err != nil {
			t.Fatalf("Emit() failed: %v", err)
		}
	}
	if err := emitter.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}

func TestAuditVerify_File(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"
	auditFlags.key = testAuditKey

	path := writeAuditLog(t, 3)
	cmd, buf := newTestCommand()
	if err := runAuditVerify(cmd, []string{path}); err != nil {
		t.Fatalf("runAuditVerify() failed: %v", err)
	}
	out := decodeOutput(t, buf)
	if out["records"] != float64(3) || out["verified"] != float64(3) {
		t.Errorf("report = %v", out)
	}
}

func TestAuditVerify_Stdin(t *testing.T) {
	resetFlags(t)
	auditFlags.key = testAuditKey

	data, err := os.ReadFile(writeAuditLog(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	cmd, buf := newTestCommand()
	cmd.SetIn(bytes.NewReader(append([]byte("worker starting\n"), data...)))
	if err := runAuditVerify(cmd, []string{"-"}); err != nil {
		t.Fatalf("runAuditVerify() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "verified: 2") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestAuditVerify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(lines []string) []string
		key    string
	}{
		{
			name: "edited field",
			mutate: func(lines []string) []string {
				lines[1] = strings.Replace(lines[1], "job-b", "job-z", 1)
				return lines
			},
			key: testAuditKey,
		},
		{
			name: "dropped record",
			mutate: func(lines []string) []string {
				return append(lines[:1], lines[2:]...)
			},
			key: testAuditKey,
		},
		{
			name:   "wrong key",
			mutate: func(lines []string) []string { return lines },
			key:    "another-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			auditFlags.key = tt.key

			path := writeAuditLog(t, 3)
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			lines := tt.mutate(strings.Split(strings.TrimSpace(string(data)), "\n"))
			if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
				t.Fatal(err)
			}

			cmd, buf := newTestCommand()
			if err := runAuditVerify(cmd, []string{path}); err == nil {
				t.Errorf("expected verification failure, output:\n%s", buf.String())
			}
		})
	}
}

func TestAuditVerify_RequiresInput(t *testing.T) {
	resetFlags(t)
	auditFlags.key = testAuditKey

	cmd, _ := newTestCommand()
	if err := runAuditVerify(cmd, nil); err == nil {
		t.Error("expected error without FILE or --sqlite")
	}
}

func newAuditDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	cfg := sink.DefaultSQLiteConfig()
	cfg.Path = path
	db, err := sink.NewSQLiteSink(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteSink() failed: %v", err)
	}
	emitTestRecords(t, db, 3)
	return path
}

func TestAuditVerify_SQLite(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"
	auditFlags.key = testAuditKey
	auditFlags.sqlite = newAuditDB(t)

	cmd, buf := newTestCommand()
	if err := runAuditVerify(cmd, nil); err != nil {
		t.Fatalf("runAuditVerify() failed: %v", err)
	}
	if out := decodeOutput(t, buf); out["verified"] != float64(3) {
		t.Errorf("report = %v", out)
	}
}

func TestAuditQuery(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"
	auditFlags.sqlite = newAuditDB(t)
	auditFlags.jobID = "job-b"

	cmd, buf := newTestCommand()
	if err := runAuditQuery(cmd, nil); err != nil {
		t.Fatalf("runAuditQuery() failed: %v", err)
	}
	out := decodeOutput(t, buf)
	if out["count"] != float64(1) {
		t.Fatalf("count = %v, want 1", out["count"])
	}
	rec := out["records"].([]any)[0].(map[string]any)["audit"].(map[string]any)
	if rec["job_id"] != "job-b" || rec["sequence"] != float64(2) || rec["signature"] == "" {
		t.Errorf("record = %v", rec)
	}
}

func TestAuditQuery_MissingDatabase(t *testing.T) {
	resetFlags(t)
	auditFlags.sqlite = filepath.Join(t.TempDir(), "absent.db")

	cmd, _ := newTestCommand()
	if err := runAuditQuery(cmd, nil); err == nil {
		t.Error("expected error for a missing database")
	}
}
