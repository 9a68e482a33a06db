package index

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// dump is the serialized form of a TermIndex produced by the index builder.
type dump struct {
	DocFreq   map[string]uint32     `json:"df"`
	Locations map[string][]Location `json:"posting_locs"`
}

// Load reads a TermIndex dump from path. Files ending in .zst or .lz4 are
// decompressed transparently.
func Load(path string, name string) (*TermIndex, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	defer f.Close()

	r, closeFn, err := Decompress(f, path)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	defer closeFn()

	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", path, err)
	}
	ix, err := New(name, d.DocFreq, d.Locations)
	if err != nil {
		return nil, err
	}
	slog.Default().With("component", "index-loader").Info("term index loaded",
		"channel", name,
		"path", path,
		"terms", ix.Terms(),
		"elapsed", time.Since(start),
	)
	return ix, nil
}

// Write serializes ix to w in the dump format Load reads.
func Write(w io.Writer, ix *TermIndex) error {
	return json.NewEncoder(w).Encode(dump{DocFreq: ix.docFreq, Locations: ix.locations})
}

// Decompress wraps r according to the extension of name. The returned close
// function releases decoder resources and never closes r itself.
func Decompress(r io.Reader, name string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(name, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return dec, dec.Close, nil
	case strings.HasSuffix(name, ".lz4"):
		return lz4.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}

// Compress is the writing counterpart of Decompress. The returned close
// function flushes the encoder and never closes w itself.
func Compress(w io.Writer, name string) (io.Writer, func() error, error) {
	switch {
	case strings.HasSuffix(name, ".zst"):
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return enc, enc.Close, nil
	case strings.HasSuffix(name, ".lz4"):
		zw := lz4.NewWriter(w)
		return zw, zw.Close, nil
	default:
		return w, func() error { return nil }, nil
	}
}

// WriteFile writes ix to path, compressed according to its extension.
func WriteFile(path string, ix *TermIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", path, err)
	}
	defer f.Close()

	w, closeFn, err := Compress(f, path)
	if err != nil {
		return err
	}
	if err := Write(w, ix); err != nil {
		return fmt.Errorf("writing index %s: %w", path, err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("flushing index %s: %w", path, err)
	}
	return f.Close()
}
