// Package cache stores JSON payloads in sharded files, written atomically.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dotcommander/lmagent/internal/proto"
)

// Kind names a cache subdirectory.
type Kind string

// Cache kinds.
const (
	SessionCache Kind = "sessions"
)

const (
	cacheExt       = ".json"
	shardPrefixLen = 2
)

var errInvalidID = errors.New("invalid id")

// Cache stores values of type T keyed by id.
type Cache[T any] struct {
	dir string
}

// New creates the cache directory under baseDir.
func New[T any](baseDir string, kind Kind) (*Cache[T], error) {
	dir := filepath.Join(baseDir, string(kind))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache[T]{dir: dir}, nil
}

// Sessions is the cache of saved conversations.
type Sessions = Cache[[]proto.Message]

// NewSessions opens the session cache under baseDir.
func NewSessions(baseDir string) (*Sessions, error) {
	return New[[]proto.Message](baseDir, SessionCache)
}

func (c *Cache[T]) path(id string) string {
	if len(id) < shardPrefixLen {
		return filepath.Join(c.dir, id+cacheExt)
	}
	return filepath.Join(c.dir, id[:shardPrefixLen], id+cacheExt)
}

// Get decodes the value stored under id.
func (c *Cache[T]) Get(id string) (T, error) {
	var v T
	if id == "" {
		return v, fmt.Errorf("read: %w", errInvalidID)
	}
	f, err := os.Open(c.path(id))
	if err != nil {
		return v, fmt.Errorf("read: %w", err)
	}
	defer f.Close() //nolint:errcheck
	if err := json.NewDecoder(f).Decode(&v); err != nil {
		return v, fmt.Errorf("read: %w", err)
	}
	return v, nil
}

// Put stores v under id.
func (c *Cache[T]) Put(id string, v T) error {
	if id == "" {
		return fmt.Errorf("write: %w", errInvalidID)
	}
	return WriteFile(c.path(id), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(v) //nolint:wrapcheck
	})
}

// Delete removes the value stored under id.
func (c *Cache[T]) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("delete: %w", errInvalidID)
	}
	if err := os.Remove(c.path(id)); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// WriteFile replaces path with whatever writeFn produces. Readers see either
// the old or the new content, never a partial file.
func WriteFile(path string, writeFn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeFn(tmp); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
