package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs on the local filesystem. They are served back by the
// frontend under <publicURL>/blobs/.
type LocalStore struct {
	baseDir   string
	publicURL string
}

func NewLocalStore(baseDir, publicURL string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local blob store requires a base directory")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalStore{
		baseDir:   baseDir,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// resolve maps a blob path onto the filesystem and rejects paths escaping the base directory.
func (s *LocalStore) resolve(blobPath string) (string, error) {
	cleaned := path.Clean("/" + blobPath)
	if cleaned == "/" || hasParentSegment(blobPath) {
		return "", fmt.Errorf("invalid blob path: %q", blobPath)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

// hasParentSegment reports whether a path segment is "..". Dots inside a
// file name such as "sketch..v2.png" are allowed.
func hasParentSegment(blobPath string) bool {
	segments := strings.FieldsFunc(blobPath, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	for _, segment := range segments {
		if segment == ".." {
			return true
		}
	}
	return false
}

func (s *LocalStore) Upload(_ context.Context, blobPath string, data []byte, _ string) error {
	target, err := s.resolve(blobPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", blobPath, err)
	}
	return nil
}

func (s *LocalStore) DownloadURL(_ context.Context, blobPath string) (string, error) {
	target, err := s.resolve(blobPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrBlobNotFound, blobPath)
		}
		return "", fmt.Errorf("failed to stat blob %s: %w", blobPath, err)
	}

	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+blobPath), "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return s.publicURL + "/blobs/" + strings.Join(segments, "/"), nil
}

// Read returns the bytes of a stored blob.
func (s *LocalStore) Read(blobPath string) ([]byte, error) {
	target, err := s.resolve(blobPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, blobPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blobPath, err)
	}
	return data, nil
}
