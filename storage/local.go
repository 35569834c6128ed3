package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LocalURLPrefix is the url path local objects are served under.
const LocalURLPrefix = "/images/"

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed and returns a LocalStorage rooted in it.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "images"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("err creating storage base path: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("err resolving storage base path: %w", err)
	}
	return &LocalStorage{basePath: abs}, nil
}

// fullPath maps a key into the base directory. Keys that would escape it map onto the base directory itself.
func (s *LocalStorage) fullPath(key string) string {
	clean := path.Clean("/" + key)
	return filepath.Join(s.basePath, filepath.FromSlash(clean))
}

// Write stores r in a temp file first and renames it into place, so readers never see partial files.
func (s *LocalStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst := s.fullPath(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("err creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("err creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("err writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("err closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("err renaming temp file: %w", err)
	}
	return nil
}

// Read opens the file stored under key.
func (s *LocalStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("err opening file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("err reading file info: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Delete removes the file stored under key.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("err deleting file: %w", err)
	}
	return nil
}

// DeletePrefix removes the directory named by prefix.
func (s *LocalStorage) DeletePrefix(ctx context.Context, prefix string) error {
	return os.RemoveAll(s.fullPath(prefix))
}

// List walks the directory named by prefix and returns the keys of all files in it.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.fullPath(prefix)
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("err listing files: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// URL returns the path the image route serves the file under.
func (s *LocalStorage) URL(key string) string {
	return LocalURLPrefix + strings.TrimPrefix(key, "/")
}

var _ Storage = (*LocalStorage)(nil)
