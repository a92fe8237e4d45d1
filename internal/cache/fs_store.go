package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NewStore builds a disk cache rooted at basePath, creating cache/ and temp/
// if they do not already exist. The whole process shares one instance.
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	cacheDir := filepath.Join(abs, "cache")
	tempDir := filepath.Join(abs, "temp")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	return &fileStore{cacheDir: cacheDir, tempDir: tempDir}, nil
}

type fileStore struct {
	cacheDir string
	tempDir  string
}

func (s *fileStore) Exists(resource string) bool {
	filePath, err := s.entryPath(resource)
	if err != nil {
		return false
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func (s *fileStore) Open(resource string) (io.ReadCloser, int64, error) {
	filePath, err := s.entryPath(resource)
	if err != nil {
		return nil, 0, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	if info.IsDir() {
		return nil, 0, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *fileStore) NewTemp() (*os.File, error) {
	return os.CreateTemp(s.tempDir, ".fetch-*")
}

func (s *fileStore) Publish(ctx context.Context, tempPath string, resource string) error {
	if err := ctx.Err(); err != nil {
		s.Discard(tempPath)
		return err
	}

	filePath, err := s.entryPath(resource)
	if err != nil {
		s.Discard(tempPath)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		s.Discard(tempPath)
		return err
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		s.Discard(tempPath)
		return err
	}
	return nil
}

func (s *fileStore) Discard(tempPath string) {
	if tempPath == "" {
		return
	}
	_ = os.Remove(tempPath)
}

// entryPath resolves resource (a classifier-approved path) to an absolute
// file path under cacheDir, rejecting anything that would escape it.
func (s *fileStore) entryPath(resource string) (string, error) {
	rel := path.Clean("/" + resource)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		return "", errors.New("invalid resource path")
	}

	filePath := filepath.Join(s.cacheDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.cacheDir+string(filepath.Separator)) {
		return "", errors.New("invalid resource path")
	}
	return filePath, nil
}
