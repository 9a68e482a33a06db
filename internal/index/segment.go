package index

import (
	"fmt"
	"os"
	"path/filepath"
)

// SegmentWriter appends encoded posting lists to fixed-size segment files in
// one directory. A list that does not fit in the current segment continues at
// offset 0 of the next one, which is the layout the storage reader expects.
// Segments are written under a .tmp name and renamed by Close.
type SegmentWriter struct {
	dir       string
	blockSize int64

	cur     *os.File
	curName string
	curOff  int64
	written []string
}

func NewSegmentWriter(dir string, blockSize int64) (*SegmentWriter, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("segment block size must be positive, got %d", blockSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	return &SegmentWriter{dir: dir, blockSize: blockSize}, nil
}

func segmentName(n int) string {
	return fmt.Sprintf("seg_%04d.bin", n)
}

// Append writes data and returns the locations it was spread over.
func (w *SegmentWriter) Append(data []byte) ([]Location, error) {
	locs := make([]Location, 0, 1)
	for len(data) > 0 {
		if w.cur == nil || w.curOff == w.blockSize {
			if err := w.roll(); err != nil {
				return nil, err
			}
		}
		n := min(int64(len(data)), w.blockSize-w.curOff)
		if _, err := w.cur.Write(data[:n]); err != nil {
			return nil, fmt.Errorf("writing segment %s: %w", w.curName, err)
		}
		locs = append(locs, Location{File: w.curName, Offset: w.curOff})
		w.curOff += n
		data = data[n:]
	}
	return locs, nil
}

func (w *SegmentWriter) roll() error {
	if w.cur != nil {
		if err := w.finish(); err != nil {
			return err
		}
	}
	name := segmentName(len(w.written))
	f, err := os.Create(filepath.Join(w.dir, name+".tmp"))
	if err != nil {
		return fmt.Errorf("creating segment file: %w", err)
	}
	w.cur, w.curName, w.curOff = f, name, 0
	w.written = append(w.written, name)
	return nil
}

func (w *SegmentWriter) finish() error {
	f := w.cur
	w.cur = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing segment %s: %w", w.curName, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment %s: %w", w.curName, err)
	}
	final := filepath.Join(w.dir, w.curName)
	if err := os.Rename(final+".tmp", final); err != nil {
		return fmt.Errorf("renaming segment %s: %w", w.curName, err)
	}
	return nil
}

// Segments returns the names of the segments written so far.
func (w *SegmentWriter) Segments() []string {
	return append([]string(nil), w.written...)
}

// Close flushes and publishes the last segment.
func (w *SegmentWriter) Close() error {
	if w.cur == nil {
		return nil
	}
	return w.finish()
}
