package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDriftDebounce is the quiet period before a changed file is re-hashed.
const DefaultDriftDebounce = 200 * time.Millisecond

// Drift describes a bundle file whose bytes no longer match the bundle in effect.
type Drift struct {
	Path            string
	EffectiveDigest string
	ObservedDigest  string
	Missing         bool
}

// DriftWatcher reports when the bundle file on disk diverges from the digest
// in effect. The running process keeps its bundle; a restart is required to
// pick up the change.
type DriftWatcher struct {
	path     string
	digest   string
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	timer   *time.Timer
	last    string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDriftWatcher creates a watcher for path compared against digest.
func NewDriftWatcher(path, digest string, debounce time.Duration, logger *slog.Logger) (*DriftWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if debounce <= 0 {
		debounce = DefaultDriftDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &DriftWatcher{
		path:     filepath.Clean(path),
		digest:   digest,
		debounce: debounce,
		logger:   logger.With("component", "policy.drift"),
		watcher:  w,
		last:     digest,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onDrift
// each time the file settles on content different from the last report.
// The parent directory is watched so editors that replace the file are seen.
func (dw *DriftWatcher) Watch(ctx context.Context, onDrift func(Drift)) error {
	dw.mu.Lock()
	if dw.running {
		dw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	dw.running = true
	dw.mu.Unlock()

	defer close(dw.doneCh)

	if err := dw.watcher.Add(filepath.Dir(dw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(dw.path), err)
	}

	dw.logger.Info("policy drift watcher started", "path", dw.path, "digest", dw.digest)

	for {
		select {
		case <-ctx.Done():
			dw.stopTimer()
			return nil

		case <-dw.stopCh:
			dw.stopTimer()
			return nil

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != dw.path {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			dw.schedule(onDrift)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			dw.logger.Error("policy drift watcher error", "error", err)
		}
	}
}

// Stop ends Watch and releases the underlying watcher.
func (dw *DriftWatcher) Stop() error {
	dw.mu.Lock()
	running := dw.running
	dw.running = false
	dw.mu.Unlock()

	if running {
		close(dw.stopCh)
		<-dw.doneCh
	}

	if err := dw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (dw *DriftWatcher) schedule(onDrift func(Drift)) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.timer = time.AfterFunc(dw.debounce, func() { dw.check(onDrift) })
}

func (dw *DriftWatcher) stopTimer() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
}

func (dw *DriftWatcher) check(onDrift func(Drift)) {
	d := Drift{Path: dw.path, EffectiveDigest: dw.digest}

	raw, err := os.ReadFile(dw.path)
	switch {
	case os.IsNotExist(err):
		d.Missing = true
	case err != nil:
		dw.logger.Warn("failed to read policy bundle for drift check", "error", err)
		return
	default:
		d.ObservedDigest = Digest(raw)
	}

	dw.mu.Lock()
	observed := d.ObservedDigest
	if d.Missing {
		observed = "missing"
	}
	if observed == dw.last {
		dw.mu.Unlock()
		return
	}
	dw.last = observed
	dw.mu.Unlock()

	if observed == dw.digest {
		dw.logger.Info("policy bundle on disk matches effective digest again", "path", dw.path)
		return
	}

	dw.logger.Warn("policy bundle on disk differs from effective bundle, restart to apply",
		"path", dw.path,
		"effective_digest", dw.digest,
		"observed_digest", d.ObservedDigest,
		"missing", d.Missing,
	)
	onDrift(d)
}
