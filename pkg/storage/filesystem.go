package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for object paths escaping the bucket directory.
var ErrInvalidPath = errors.New("invalid object path")

// PublicPathPrefix is the route under which the API serves locally stored objects.
const PublicPathPrefix = "/storage/v1/object/public"

// FilesystemBackend persists objects on disk under <baseDir>/<bucket>.
type FilesystemBackend struct {
	root    string
	bucket  string
	baseURL string
}

// NewFilesystemBackend ensures the bucket directory exists and returns a handle.
func NewFilesystemBackend(baseDir, bucket, publicBaseURL string) (*FilesystemBackend, error) {
	if baseDir == "" {
		baseDir = "./media"
	}
	root := filepath.Join(baseDir, bucket)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket directory: %w", err)
	}
	return &FilesystemBackend{
		root:    root,
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Put copies r into the object file, creating parent directories.
func (s *FilesystemBackend) Put(ctx context.Context, objectPath string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare object directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return fmt.Errorf("write object: %w", err)
	}
	return file.Close()
}

// Open returns a read-only handle for the stored object.
func (s *FilesystemBackend) Open(objectPath string) (*os.File, error) {
	target, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	return os.Open(target)
}

// Delete removes a stored object if present.
func (s *FilesystemBackend) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURL returns the URL served by the API's public object route.
func (s *FilesystemBackend) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s%s/%s/%s", s.baseURL, PublicPathPrefix, s.bucket, strings.TrimPrefix(objectPath, "/"))
}

// Bucket returns the bucket name served by this backend.
func (s *FilesystemBackend) Bucket() string {
	return s.bucket
}

func (s *FilesystemBackend) resolve(objectPath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectPath))
	if clean == string(filepath.Separator) {
		return "", ErrInvalidPath
	}
	target := filepath.Join(s.root, clean)
	if !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return target, nil
}
