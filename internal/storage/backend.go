// Package storage reads posting-list bytes out of segment files held by a blob
// backend (local disk, S3 or MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
)

// ErrNotFound is returned by a Backend when the named segment does not exist.
var ErrNotFound = errors.New("segment not found")

// Backend performs ranged reads on named segment files. ReadAt fills p
// completely or returns an error; a short segment is an error.
type Backend interface {
	ReadAt(ctx context.Context, name string, p []byte, off int64) error
}

// LocalBackend reads segments from a directory on local disk. Open file
// handles are cached for the life of the backend.
type LocalBackend struct {
	root  string
	mu    sync.Mutex
	files map[string]*os.File
}

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root, files: make(map[string]*os.File)}
}

func (b *LocalBackend) open(name string) (*os.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.files[name]; ok {
		return f, nil
	}
	f, err := os.Open(filepath.Join(b.root, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	b.files[name] = f
	return f, nil
}

func (b *LocalBackend) ReadAt(_ context.Context, name string, p []byte, off int64) error {
	f, err := b.open(name)
	if err != nil {
		return err
	}
	n, err := f.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("reading %s at %d: got %d of %d bytes: %w", name, off, n, len(p), err)
}

// Close releases every cached file handle.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for name, f := range b.files {
		errs = append(errs, f.Close())
		delete(b.files, name)
	}
	return errors.Join(errs...)
}

// MemoryBackend keeps segments in memory. It is used by tests and by tools
// that build small indexes on the fly.
type MemoryBackend struct {
	mu       sync.RWMutex
	segments map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{segments: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (b *MemoryBackend) Put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments[name] = append([]byte(nil), data...)
}

func (b *MemoryBackend) ReadAt(_ context.Context, name string, p []byte, off int64) error {
	b.mu.RLock()
	data, ok := b.segments[name]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if off < 0 || off+int64(len(p)) > int64(len(data)) {
		return fmt.Errorf("reading %s at %d: range exceeds %d bytes: %w", name, off, len(data), io.ErrUnexpectedEOF)
	}
	copy(p, data[off:])
	return nil
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.PostingsConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalBackend(cfg.DataDir), nil
	case "s3":
		return NewS3Backend(ctx, cfg)
	case "minio":
		return NewMinIOBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown postings backend %q", cfg.Backend)
	}
}
