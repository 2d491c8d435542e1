package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

var _ KV = (*File)(nil)

// File stores each key in its own file under a directory. Writes go through
// a temp file and rename, so a reader never observes a half-written record.
type File struct {
	dir string
}

// NewFile creates dir (0700) if needed and returns a store rooted there.
func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage/file: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage/file: create directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// DefaultDir returns <user config dir>/<app>/session, the conventional location for
// a per-user session cache.
func DefaultDir(app string) (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("storage/file: user config dir: %w", err)
	}
	return filepath.Join(cfgDir, app, "session"), nil
}

func (f *File) path(key string) string {
	h := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(h[:])+".json")
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage/file: read %q: %w", key, err)
	}
	return string(raw), nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	fn := f.path(key)
	if err := atomic.WriteFile(fn, strings.NewReader(value)); err != nil {
		return fmt.Errorf("storage/file: write %q: %w", key, err)
	}
	if err := os.Chmod(fn, 0o600); err != nil {
		return fmt.Errorf("storage/file: chmod %q: %w", key, err)
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage/file: remove %q: %w", key, err)
	}
	return nil
}
