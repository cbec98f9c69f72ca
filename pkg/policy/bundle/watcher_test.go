package bundle

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestDriftWatcher_ReportsChangedFile(t *testing.T) {
	content := `{"version":"1.0"}`
	path := writeBundle(t, content)

	dw, err := NewDriftWatcher(path, Digest([]byte(content)), 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewDriftWatcher() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drifts := make(chan Drift, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- dw.Watch(ctx, func(d Drift) { drifts <- d })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	changed := []byte(`{"version":"2.0"}`)
	if err := os.WriteFile(path, changed, 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case d := <-drifts:
		if d.ObservedDigest != Digest(changed) {
			t.Errorf("ObservedDigest = %s, want %s", d.ObservedDigest, Digest(changed))
		}
		if d.EffectiveDigest != Digest([]byte(content)) {
			t.Errorf("EffectiveDigest = %s, want original digest", d.EffectiveDigest)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for drift report")
	}

	if err := dw.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Watch() returned error: %v", err)
	}
}

func TestNewDriftWatcher_EmptyPath(t *testing.T) {
	if _, err := NewDriftWatcher("", "", 0, nil); err == nil {
		t.Error("NewDriftWatcher() succeeded with empty path, want error")
	}
}
