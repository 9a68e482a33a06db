// Package titles maps ranked document ids to their titles.
package titles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
)

// Store looks up titles for a batch of document ids. Ids without a title are
// absent from the returned map.
type Store interface {
	Titles(ctx context.Context, ids []uint32) (map[uint32]string, error)
}

// MemoryStore is an immutable in-memory id to title table.
type MemoryStore struct {
	titles map[uint32]string
}

func NewMemoryStore(titles map[uint32]string) *MemoryStore {
	return &MemoryStore{titles: titles}
}

func (s *MemoryStore) Titles(_ context.Context, ids []uint32) (map[uint32]string, error) {
	out := make(map[uint32]string, len(ids))
	for _, id := range ids {
		if t, ok := s.titles[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (s *MemoryStore) Len() int { return len(s.titles) }

// LoadFile reads a JSON object of "id": "title" pairs. Files ending in .zst
// or .lz4 are decompressed.
func LoadFile(path string) (*MemoryStore, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening titles %s: %w", path, err)
	}
	defer f.Close()

	r, closeFn, err := index.Decompress(f, path)
	if err != nil {
		return nil, fmt.Errorf("titles %s: %w", path, err)
	}
	defer closeFn()

	var raw map[string]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding titles %s: %w", path, err)
	}
	titles := make(map[uint32]string, len(raw))
	for key, title := range raw {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("titles %s: bad document id %q: %w", path, key, err)
		}
		titles[uint32(id)] = title
	}
	slog.Default().With("component", "title-loader").Info("title table loaded",
		"path", path,
		"titles", len(titles),
		"elapsed", time.Since(start),
	)
	return NewMemoryStore(titles), nil
}

// WriteFile writes titles in the format LoadFile reads, compressed according
// to the extension of path.
func WriteFile(path string, titles map[uint32]string) error {
	raw := make(map[string]string, len(titles))
	for id, title := range titles {
		raw[strconv.FormatUint(uint64(id), 10)] = title
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating titles %s: %w", path, err)
	}
	defer f.Close()

	w, closeFn, err := index.Compress(f, path)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(raw); err != nil {
		return fmt.Errorf("writing titles %s: %w", path, err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("flushing titles %s: %w", path, err)
	}
	return f.Close()
}
