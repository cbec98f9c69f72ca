package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// DefaultMaxBundleSize caps the bytes read from any source (1 MiB).
const DefaultMaxBundleSize int64 = 1 << 20

// Source fetches the raw bytes of a policy bundle.
// Implementations return ErrNotFound when no bundle exists at their location.
type Source interface {
	// Fetch returns the raw bundle bytes.
	Fetch(ctx context.Context) ([]byte, error)

	// Location describes where the bundle comes from, for logs and audit.
	Location() string
}

// FileSource reads a bundle from the local filesystem.
type FileSource struct {
	Path    string
	MaxSize int64
}

// NewFileSource creates a FileSource for path with the default size cap.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, MaxSize: DefaultMaxBundleSize}
}

// Location returns the file path.
func (s *FileSource) Location() string {
	return s.Path
}

// Fetch reads the bundle file.
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &LoadError{Location: s.Path, Message: "failed to open file", Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &LoadError{Location: s.Path, Message: "failed to stat file", Cause: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Location: s.Path, Message: "path is a directory"}
	}

	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxBundleSize
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, &LoadError{Location: s.Path, Message: "failed to read file", Cause: err}
	}
	if int64(len(data)) > limit {
		return nil, &LoadError{Location: s.Path, Message: fmt.Sprintf("bundle exceeds %d bytes", limit)}
	}

	return data, nil
}
