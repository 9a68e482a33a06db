package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
)

const sampleDump = `{
  "df": {"cat": 2, "dog": 1},
  "posting_locs": {
    "cat": [["postings_gcp/0_000.bin", 0]],
    "dog": [["/data/postings_gcp/0_000.bin", 12], ["0_001.bin", 0]]
  }
}`

func TestLocationJSON(t *testing.T) {
	var loc Location
	require.NoError(t, json.Unmarshal([]byte(`["a.bin", 42]`), &loc))
	assert.Equal(t, Location{File: "a.bin", Offset: 42}, loc)

	out, err := json.Marshal(loc)
	require.NoError(t, err)
	assert.JSONEq(t, `["a.bin", 42]`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`["a.bin"]`), &loc))
	assert.Error(t, json.Unmarshal([]byte(`{"file":"a"}`), &loc))
}

func TestNewRebasesFileNames(t *testing.T) {
	ix, err := New("body",
		map[string]uint32{"cat": 1},
		map[string][]Location{"cat": {{File: "/mnt/x/postings_gcp/1_002.bin", Offset: 6}}},
	)
	require.NoError(t, err)
	locs, ok := ix.Locations("cat")
	require.True(t, ok)
	assert.Equal(t, []Location{{File: "1_002.bin", Offset: 6}}, locs)
	assert.Equal(t, "body", ix.Name())
}

func TestNewRejectsMismatchedTerms(t *testing.T) {
	_, err := New("body", map[string]uint32{"cat": 1}, map[string][]Location{"dog": nil})
	assert.True(t, errors.Is(err, apperrors.ErrIndexCorrupt))

	_, err = New("body", map[string]uint32{"cat": 1, "dog": 1}, map[string][]Location{"dog": nil})
	assert.True(t, errors.Is(err, apperrors.ErrIndexCorrupt))
}

func TestDocFrequencyUnknownTerm(t *testing.T) {
	ix, err := New("title", map[string]uint32{}, map[string][]Location{})
	require.NoError(t, err)
	_, ok := ix.DocFrequency("zebra")
	assert.False(t, ok)
	_, ok = ix.Locations("zebra")
	assert.False(t, ok)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func checkSample(t *testing.T, ix *TermIndex) {
	t.Helper()
	df, ok := ix.DocFrequency("cat")
	require.True(t, ok)
	assert.Equal(t, uint32(2), df)
	locs, _ := ix.Locations("dog")
	assert.Equal(t, []Location{{File: "0_000.bin", Offset: 12}, {File: "0_001.bin", Offset: 0}}, locs)
	assert.Equal(t, 2, ix.Terms())
}

func TestLoadPlainJSON(t *testing.T) {
	ix, err := Load(writeFile(t, "index.json", []byte(sampleDump)), "body")
	require.NoError(t, err)
	checkSample(t, ix)
}

func TestLoadZstd(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(sampleDump))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	ix, err := Load(writeFile(t, "index.json.zst", buf.Bytes()), "body")
	require.NoError(t, err)
	checkSample(t, ix)
}

func TestLoadLZ4(t *testing.T) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write([]byte(sampleDump))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ix, err := Load(writeFile(t, "index.json.lz4", buf.Bytes()), "title")
	require.NoError(t, err)
	checkSample(t, ix)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), "body")
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", []byte("{not json")), "body")
	assert.Error(t, err)
}

func TestWriteThenLoad(t *testing.T) {
	ix, err := New("body", map[string]uint32{"cat": 3}, map[string][]Location{"cat": {{File: "0_000.bin"}}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ix))
	got, err := Load(writeFile(t, "out.json", buf.Bytes()), "body")
	require.NoError(t, err)
	df, _ := got.DocFrequency("cat")
	assert.Equal(t, uint32(3), df)
}
