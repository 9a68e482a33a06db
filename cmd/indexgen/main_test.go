package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/titles"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
)

const corpus = `{"id": 30, "title": "Dogs", "body": "dogs bark and dogs run"}
{"id": 10, "title": "Cats", "body": "cats purr; cats sleep all day"}

{"id": 20, "title": "Pets", "body": "cats and dogs are common pets"}
`

func testConfig(dir string) *config.Config {
	return &config.Config{
		Index: config.IndexConfig{
			BodyPath:       filepath.Join(dir, "index.json.zst"),
			TitlePath:      filepath.Join(dir, "title_index.json"),
			CollectionSize: 3,
		},
		Postings: config.PostingsConfig{
			Backend:     "local",
			DataDir:     dir,
			BodyPrefix:  "body",
			TitlePrefix: "title",
			BlockSize:   16,
		},
		Titles: config.TitlesConfig{Backend: "file", Path: filepath.Join(dir, "titles.json.lz4")},
	}
}

func TestReadCorpusSortsAndRejectsDuplicates(t *testing.T) {
	docs, err := readCorpus(strings.NewReader(corpus))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []uint32{10, 20, 30}, []uint32{docs[0].ID, docs[1].ID, docs[2].ID})

	_, err = readCorpus(strings.NewReader(`{"id":1}` + "\n" + `{"id":1}`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = readCorpus(strings.NewReader("{oops"))
	assert.ErrorContains(t, err, "line 1")
}

func TestBuiltIndexIsSearchable(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	docs, err := readCorpus(strings.NewReader(corpus))
	require.NoError(t, err)

	sum, err := build(cfg, docs)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Documents)
	assert.Greater(t, sum.Segments, 2)

	bodyIx, err := index.Load(cfg.Index.BodyPath, "body")
	require.NoError(t, err)
	titleIx, err := index.Load(cfg.Index.TitlePath, "title")
	require.NoError(t, err)

	backend := storage.NewLocalBackend(dir)
	t.Cleanup(func() { backend.Close() })
	reader := func(channel, prefix string) *storage.Reader {
		return storage.NewReader(backend, storage.ReaderConfig{Channel: channel, Prefix: prefix, BlockSize: cfg.Postings.BlockSize})
	}
	exec := executor.New(
		ranker.NewScorer("body", bodyIx, reader("body", "body"), cfg.Index.CollectionSize),
		ranker.NewScorer("title", titleIx, reader("title", "title"), cfg.Index.CollectionSize),
		titles.NewResolver(func(context.Context) (titles.Store, error) {
			return titles.LoadFile(cfg.Titles.Path)
		}, nil),
		executor.Config{},
		nil,
	)

	res, err := exec.Search(context.Background(), "cats", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, titles.Hit{DocID: 10, Title: "Cats"}, res.Results[0])
	assert.Equal(t, uint32(20), res.Results[1].DocID)

	res, err = exec.SearchFused(context.Background(), "dogs", 10, merger.Weights{Body: 0, Title: 1})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, titles.Hit{DocID: 30, Title: "Dogs"}, res.Results[0])
}
