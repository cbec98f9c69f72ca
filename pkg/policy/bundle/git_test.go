package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T, files map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() failed: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() failed: %v", err)
	}

	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("MkdirAll() failed: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("Add(%s) failed: %v", name, err)
		}
	}

	hash, err := wt.Commit("add bundle", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return dir, hash.String()
}

func TestGitSource_ReadsCommittedBundle(t *testing.T) {
	content := `{"version":"4.0","max_cats":2}`
	dir, sha := initRepo(t, map[string]string{"policies/bundle.json": content})

	src := &GitSource{LocalPath: dir, Path: "policies/bundle.json"}
	raw, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if string(raw) != content {
		t.Errorf("Fetch() = %q, want %q", raw, content)
	}
	if src.Commit() != sha {
		t.Errorf("Commit() = %s, want %s", src.Commit(), sha)
	}

	// Uncommitted edits are ignored.
	if err := os.WriteFile(filepath.Join(dir, "policies/bundle.json"), []byte(`{}`), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	raw, err = src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if string(raw) != content {
		t.Errorf("Fetch() after worktree edit = %q, want committed content", raw)
	}
}

func TestGitSource_MissingFile(t *testing.T) {
	dir, _ := initRepo(t, map[string]string{"README": "x"})

	src := &GitSource{LocalPath: dir, Path: "bundle.json"}
	if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch() error = %v, want ErrNotFound", err)
	}
}

func TestGitSource_UnknownBranch(t *testing.T) {
	dir, _ := initRepo(t, map[string]string{"bundle.json": "{}"})

	src := &GitSource{LocalPath: dir, Branch: "does-not-exist", Path: "bundle.json"}
	var loadErr *LoadError
	if _, err := src.Fetch(context.Background()); !errors.As(err, &loadErr) {
		t.Errorf("Fetch() error = %v, want *LoadError", err)
	}
}

func TestGitSource_WithLoader(t *testing.T) {
	content := `{"version":"5.0"}`
	dir, _ := initRepo(t, map[string]string{"bundle.json": content})

	l, err := NewLoader(Options{Source: &GitSource{LocalPath: dir, Path: "bundle.json"}})
	if err != nil {
		t.Fatalf("NewLoader() failed: %v", err)
	}
	b, digest, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if b.Version != "5.0" {
		t.Errorf("Version = %q, want 5.0", b.Version)
	}
	if digest != Digest([]byte(content)) {
		t.Errorf("digest = %s, want digest of committed bytes", digest)
	}
}
