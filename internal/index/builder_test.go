package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readPostings reassembles a term's bytes from segments on disk the same way
// the storage reader does.
func readPostings(t *testing.T, dir string, blockSize int64, locs []Location, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	for _, loc := range locs {
		data, err := os.ReadFile(filepath.Join(dir, loc.File))
		require.NoError(t, err)
		chunk := min(int64(n-len(out)), blockSize-loc.Offset)
		out = append(out, data[loc.Offset:loc.Offset+chunk]...)
	}
	require.Len(t, out, n)
	return out
}

func TestSegmentWriterRollsAtBlockSize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSegmentWriter(dir, 10)
	require.NoError(t, err)

	a, err := w.Append([]byte("aaaaaaa"))
	require.NoError(t, err)
	b, err := w.Append([]byte("bbbbbbbbbbbbbb"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []Location{{File: "seg_0000.bin", Offset: 0}}, a)
	assert.Equal(t, []Location{
		{File: "seg_0000.bin", Offset: 7},
		{File: "seg_0001.bin", Offset: 0},
		{File: "seg_0002.bin", Offset: 0},
	}, b)
	assert.Equal(t, []string{"seg_0000.bin", "seg_0001.bin", "seg_0002.bin"}, w.Segments())

	assert.Equal(t, []byte("bbbbbbbbbbbbbb"), readPostings(t, dir, 10, b, 14))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSegmentWriterRejectsBadBlockSize(t *testing.T) {
	_, err := NewSegmentWriter(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestBuilderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder("body")
	require.NoError(t, b.AddDocument(1, []string{"cat", "dog", "cat"}))
	require.NoError(t, b.AddDocument(2, nil))
	require.NoError(t, b.AddDocument(5, []string{"cat"}))
	assert.Equal(t, 2, b.Documents())

	w, err := NewSegmentWriter(dir, 8)
	require.NoError(t, err)
	ix, err := b.Build(w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	df, ok := ix.DocFrequency("cat")
	require.True(t, ok)
	require.Equal(t, uint32(2), df)

	locs, _ := ix.Locations("cat")
	raw := readPostings(t, dir, 8, locs, ByteLen(df))
	got, err := Decode(raw, df)
	require.NoError(t, err)
	assert.Equal(t, PostingList{{DocID: 1, Frequency: 2}, {DocID: 5, Frequency: 1}}, got)

	df, _ = ix.DocFrequency("dog")
	locs, _ = ix.Locations("dog")
	got, err = Decode(readPostings(t, dir, 8, locs, ByteLen(df)), df)
	require.NoError(t, err)
	assert.Equal(t, PostingList{{DocID: 1, Frequency: 1}}, got)
}

func TestBuilderRejectsOutOfOrderDocuments(t *testing.T) {
	b := NewBuilder("title")
	require.NoError(t, b.AddDocument(3, []string{"cat"}))
	assert.Error(t, b.AddDocument(3, []string{"cat"}))
	assert.Error(t, b.AddDocument(2, []string{"cat"}))
}

func TestWriteFileLoadRoundTrip(t *testing.T) {
	ix, err := New("body",
		map[string]uint32{"cat": 2, "dog": 1},
		map[string][]Location{"cat": {{File: "seg_0000.bin"}}, "dog": {{File: "seg_0000.bin", Offset: 12}}},
	)
	require.NoError(t, err)

	for _, name := range []string{"index.json", "index.json.zst", "index.json.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteFile(path, ix))

			loaded, err := Load(path, "body")
			require.NoError(t, err)
			assert.Equal(t, 2, loaded.Terms())
			locs, _ := loaded.Locations("dog")
			assert.Equal(t, []Location{{File: "seg_0000.bin", Offset: 12}}, locs)
		})
	}
}
