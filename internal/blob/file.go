// ABOUTME: Filesystem blob store writing one JSON file per key under a data directory
// ABOUTME: Writes go through a temp file and rename so failures keep the old value

package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps each value in <dir>/<SafeName(key)>.json.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the directory if needed. An existing directory is fine.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "blob-file"),
	}, nil
}

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, SafeName(key)+".json")
}

// Get reads the file for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	s.logger.Debug("read from disk", "path", path, "size", len(data))
	return data, nil
}

// Put writes value to a temp file in the same directory and renames it over
// the previous file.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(key)

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming into %s: %w", path, err)
	}

	s.logger.Debug("wrote to disk", "path", path, "size", len(value))
	return nil
}

// Close is a no-op for the filesystem backend.
func (s *FileStore) Close() error {
	return nil
}
