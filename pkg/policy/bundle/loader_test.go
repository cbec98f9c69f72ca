package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeBundle(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write bundle: %v", err)
	}
	return path
}

func defaultDigest(t *testing.T) string {
	t.Helper()
	raw, err := CanonicalBytes(Default())
	if err != nil {
		t.Fatalf("CanonicalBytes() failed: %v", err)
	}
	return Digest(raw)
}

func TestLoader_NoSourceUsesDefaults(t *testing.T) {
	l, err := NewLoader(Options{})
	if err != nil {
		t.Fatalf("NewLoader() failed: %v", err)
	}

	b, digest, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if b.MaxCats != DefaultMaxCats {
		t.Errorf("MaxCats = %d, want %d", b.MaxCats, DefaultMaxCats)
	}
	if digest != defaultDigest(t) {
		t.Errorf("digest = %s, want default digest", digest)
	}
	if got := l.Provenance().Origin; got != OriginDefault {
		t.Errorf("Origin = %s, want %s", got, OriginDefault)
	}
}

func TestLoader_FileDigestOverRawBytes(t *testing.T) {
	content := `{"version":"3.1", "max_cats": 7}`
	path := writeBundle(t, content)

	l, err := NewLoader(Options{Source: NewFileSource(path)})
	if err != nil {
		t.Fatalf("NewLoader() failed: %v", err)
	}

	b, digest, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if b.Version != "3.1" || b.MaxCats != 7 {
		t.Errorf("bundle = %+v, want version 3.1 max_cats 7", b)
	}
	if want := Digest([]byte(content)); digest != want {
		t.Errorf("digest = %s, want %s", digest, want)
	}
}

func TestLoader_FallbackDigestMatchesDefault(t *testing.T) {
	tests := []struct {
		name   string
		source Source
		origin Origin
	}{
		{
			name:   "missing file",
			source: NewFileSource(filepath.Join(t.TempDir(), "absent.json")),
			origin: OriginFallbackMissing,
		},
		{
			name:   "unparseable file",
			source: NewFileSource(writeBundle(t, "not json")),
			origin: OriginFallbackInvalid,
		},
		{
			name:   "directory",
			source: NewFileSource(t.TempDir()),
			origin: OriginFallbackUnreadable,
		},
		{
			name:   "oversized file",
			source: &FileSource{Path: writeBundle(t, `{"version":"1.0","pad":"xxxxxxxxxxxxxxxx"}`), MaxSize: 10},
			origin: OriginFallbackUnreadable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLoader(Options{Source: tt.source})
			if err != nil {
				t.Fatalf("NewLoader() failed: %v", err)
			}

			b, digest, err := l.Load(context.Background())
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if b.MaxResponseSize != DefaultMaxResponseSize {
				t.Errorf("MaxResponseSize = %d, want default", b.MaxResponseSize)
			}
			if digest != defaultDigest(t) {
				t.Errorf("digest = %s, want default digest %s", digest, defaultDigest(t))
			}
			if got := l.Provenance().Origin; got != tt.origin {
				t.Errorf("Origin = %s, want %s", got, tt.origin)
			}
		})
	}
}

func TestLoader_Signature(t *testing.T) {
	content := `{"version":"1.0","max_cats":3}`
	key := []byte("bundle-key")

	t.Run("valid signature", func(t *testing.T) {
		l, err := NewLoader(Options{
			Source:    NewFileSource(writeBundle(t, content)),
			HMACKey:   key,
			Signature: Sign(key, []byte(content)),
		})
		if err != nil {
			t.Fatalf("NewLoader() failed: %v", err)
		}
		b, _, err := l.Load(context.Background())
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if b.MaxCats != 3 {
			t.Errorf("MaxCats = %d, want 3", b.MaxCats)
		}
		if !l.Provenance().Signed {
			t.Error("Provenance().Signed = false, want true")
		}
	})

	t.Run("tampered bundle is fatal", func(t *testing.T) {
		l, err := NewLoader(Options{
			Source:    NewFileSource(writeBundle(t, `{"version":"1.0","max_cats":300}`)),
			HMACKey:   key,
			Signature: Sign(key, []byte(content)),
		})
		if err != nil {
			t.Fatalf("NewLoader() failed: %v", err)
		}
		_, _, err = l.Load(context.Background())
		if !IsSignatureError(err) {
			t.Fatalf("Load() error = %v, want *SignatureError", err)
		}
	})

	t.Run("missing signed bundle is fatal", func(t *testing.T) {
		l, err := NewLoader(Options{
			Source:    NewFileSource(filepath.Join(t.TempDir(), "absent.json")),
			HMACKey:   key,
			Signature: Sign(key, []byte(content)),
		})
		if err != nil {
			t.Fatalf("NewLoader() failed: %v", err)
		}
		_, _, err = l.Load(context.Background())
		if !IsSignatureError(err) {
			t.Fatalf("Load() error = %v, want *SignatureError", err)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error does not wrap ErrNotFound: %v", err)
		}
	})

	t.Run("key without signature rejected", func(t *testing.T) {
		if _, err := NewLoader(Options{HMACKey: key}); err == nil {
			t.Error("NewLoader() succeeded with key only, want error")
		}
	})

	t.Run("signature without key rejected", func(t *testing.T) {
		if _, err := NewLoader(Options{Signature: "ab"}); err == nil {
			t.Error("NewLoader() succeeded with signature only, want error")
		}
	})
}

func TestLoader_CachesFirstResult(t *testing.T) {
	path := writeBundle(t, `{"version":"1.0"}`)
	l, err := NewLoader(Options{Source: NewFileSource(path)})
	if err != nil {
		t.Fatalf("NewLoader() failed: %v", err)
	}

	first, d1, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"version":"9.9"}`), 0644); err != nil {
		t.Fatalf("failed to rewrite bundle: %v", err)
	}

	second, d2, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if first != second || d1 != d2 {
		t.Error("Load() did not return the cached bundle")
	}
	if second.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", second.Version)
	}
}

func TestFileSource_Limits(t *testing.T) {
	path := writeBundle(t, `{"version":"1.0","pad":"xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"}`)
	src := &FileSource{Path: path, MaxSize: 10}

	_, err := src.Fetch(context.Background())
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Fetch() error = %v, want *LoadError", err)
	}

	dirSrc := NewFileSource(t.TempDir())
	if _, err := dirSrc.Fetch(context.Background()); !errors.As(err, &loadErr) {
		t.Errorf("Fetch() on directory error = %v, want *LoadError", err)
	}
}

func TestLoader_UnreadableSignedBundleIsFatal(t *testing.T) {
	l, err := NewLoader(Options{
		Source:    NewFileSource(t.TempDir()),
		HMACKey:   []byte("k"),
		Signature: "abc",
	})
	if err != nil {
		t.Fatalf("NewLoader() failed: %v", err)
	}

	b, _, err := l.Load(context.Background())
	if !IsSignatureError(err) {
		t.Fatalf("Load() error = %v, want *SignatureError", err)
	}
	if b != nil {
		t.Errorf("Load() returned bundle %+v with a fatal error", b)
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Errorf("Load() error does not wrap the source error: %v", err)
	}
}
