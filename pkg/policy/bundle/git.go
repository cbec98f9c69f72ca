package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitSource reads a bundle file from a commit in a Git repository.
//
// If LocalPath already holds a repository it is opened as is. Otherwise,
// when Repository is set, it is cloned into LocalPath. The bundle is read
// from the commit at the tip of Branch (HEAD when Branch is empty), never
// from the worktree, so uncommitted edits do not change the digest.
type GitSource struct {
	Repository string
	Branch     string
	Path       string
	LocalPath  string
	Depth      int
	MaxSize    int64

	lastCommit string
}

// Location returns a repository-qualified description of the bundle.
func (s *GitSource) Location() string {
	repo := s.Repository
	if repo == "" {
		repo = s.LocalPath
	}
	if s.Branch != "" {
		return fmt.Sprintf("git:%s@%s:%s", repo, s.Branch, s.Path)
	}
	return fmt.Sprintf("git:%s:%s", repo, s.Path)
}

// Commit returns the commit SHA the last successful Fetch read from.
func (s *GitSource) Commit() string {
	return s.lastCommit
}

// Fetch opens or clones the repository and returns the bundle file contents.
func (s *GitSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, &LoadError{Location: s.Location(), Message: "bundle path in repository is empty"}
	}

	repo, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	commit, err := s.resolveCommit(repo)
	if err != nil {
		return nil, err
	}

	file, err := commit.File(filepath.ToSlash(s.Path))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, &LoadError{Location: s.Location(), Message: "failed to read bundle from commit", Cause: err}
	}

	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxBundleSize
	}
	if file.Size > limit {
		return nil, &LoadError{Location: s.Location(), Message: fmt.Sprintf("bundle exceeds %d bytes", limit)}
	}

	contents, err := file.Contents()
	if err != nil {
		return nil, &LoadError{Location: s.Location(), Message: "failed to read blob", Cause: err}
	}

	s.lastCommit = commit.Hash.String()
	return []byte(contents), nil
}

func (s *GitSource) open(ctx context.Context) (*gogit.Repository, error) {
	if s.LocalPath == "" {
		return nil, &LoadError{Location: s.Location(), Message: "local path cannot be empty"}
	}

	if _, err := os.Stat(filepath.Join(s.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.LocalPath)
		if err != nil {
			return nil, &LoadError{Location: s.Location(), Message: "failed to open existing repo", Cause: err}
		}
		return repo, nil
	}

	if s.Repository == "" {
		return nil, ErrNotFound
	}

	if err := os.MkdirAll(s.LocalPath, 0755); err != nil {
		return nil, &LoadError{Location: s.Location(), Message: "failed to create repository directory", Cause: err}
	}

	opts := &gogit.CloneOptions{
		URL:          s.Repository,
		SingleBranch: s.Depth > 0,
		Depth:        s.Depth,
	}
	if s.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.Branch)
	}

	repo, err := gogit.PlainCloneContext(ctx, s.LocalPath, false, opts)
	if err != nil {
		return nil, &LoadError{Location: s.Location(), Message: "failed to clone repository", Cause: err}
	}
	return repo, nil
}

func (s *GitSource) resolveCommit(repo *gogit.Repository) (*object.Commit, error) {
	var hash plumbing.Hash
	if s.Branch != "" {
		ref, err := repo.Reference(plumbing.NewBranchReferenceName(s.Branch), true)
		if err != nil {
			return nil, &LoadError{Location: s.Location(), Message: "branch not found", Cause: err}
		}
		hash = ref.Hash()
	} else {
		ref, err := repo.Head()
		if err != nil {
			return nil, &LoadError{Location: s.Location(), Message: "failed to get HEAD", Cause: err}
		}
		hash = ref.Hash()
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, &LoadError{Location: s.Location(), Message: "failed to get commit", Cause: err}
	}
	return commit, nil
}
