package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/titles"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
)

type fakeChannel struct {
	name  string
	docs  []ranker.ScoredDoc
	err   error
	block bool
	gotK  atomic.Int64
}

func (f *fakeChannel) Channel() string { return f.name }

func (f *fakeChannel) Score(ctx context.Context, _ []string, k int) (ranker.Result, error) {
	f.gotK.Store(int64(k))
	if f.block {
		<-ctx.Done()
		return ranker.Result{}, ctx.Err()
	}
	if f.err != nil {
		return ranker.Result{}, f.err
	}
	docs := f.docs
	if len(docs) > k {
		docs = docs[:k]
	}
	return ranker.Result{Docs: docs, Matched: len(f.docs)}, nil
}

type countingResolver struct {
	*titles.Resolver
	calls atomic.Int32
}

func (c *countingResolver) Resolve(ctx context.Context, ids []uint32) ([]titles.Hit, error) {
	c.calls.Add(1)
	return c.Resolver.Resolve(ctx, ids)
}

func newResolver(m map[uint32]string) *countingResolver {
	return &countingResolver{Resolver: titles.NewStaticResolver(titles.NewMemoryStore(m), nil)}
}

func scored(pairs ...float64) []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, ranker.ScoredDoc{DocID: uint32(pairs[i]), Score: pairs[i+1]})
	}
	return out
}

func realChannel(t *testing.T, name string, postings map[string]index.PostingList, n int64) *ranker.Scorer {
	t.Helper()
	mem := storage.NewMemoryBackend()
	df := map[string]uint32{}
	locs := map[string][]index.Location{}
	for term, list := range postings {
		mem.Put(name+"/"+term, index.Encode(nil, list))
		df[term] = uint32(len(list))
		locs[term] = []index.Location{{File: term}}
	}
	ix, err := index.New(name, df, locs)
	require.NoError(t, err)
	return ranker.NewScorer(name, ix, storage.NewReader(mem, storage.ReaderConfig{Channel: name, Prefix: name}), n)
}

func TestSearchBodyEndToEnd(t *testing.T) {
	body := realChannel(t, "body", map[string]index.PostingList{
		"cat": {{DocID: 1, Frequency: 3}, {DocID: 2, Frequency: 1}, {DocID: 4, Frequency: 1}},
		"dog": {{DocID: 1, Frequency: 2}},
	}, 10)
	title := &fakeChannel{name: "title"}
	res := newResolver(map[uint32]string{1: "Cats and dogs", 2: "Cat"})
	e := New(body, title, res, Config{}, nil)

	got, err := e.Search(context.Background(), "Cat DOG", 100)
	require.NoError(t, err)
	assert.Equal(t, ModeBody, got.Mode)
	assert.Equal(t, []string{"cat", "dog"}, got.Terms)
	assert.Equal(t, []titles.Hit{{DocID: 1, Title: "Cats and dogs"}, {DocID: 2, Title: "Cat"}}, got.Results)
	assert.Equal(t, 3, got.BodyMatches)
	assert.Equal(t, 1, got.MissingTitles)
	assert.Nil(t, got.Weights)
	assert.Zero(t, title.gotK.Load())
}

func TestSearchUsesCandidatePool(t *testing.T) {
	body := &fakeChannel{name: "body", docs: scored(1, 5, 2, 4, 3, 3, 4, 2)}
	e := New(body, &fakeChannel{name: "title"}, newResolver(map[uint32]string{1: "a", 2: "b", 3: "c", 4: "d"}), Config{}, nil)

	got, err := e.Search(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), body.gotK.Load())
	assert.Equal(t, []titles.Hit{{DocID: 1, Title: "a"}, {DocID: 2, Title: "b"}}, got.Results)
}

func TestSearchEmptyQuerySkipsEverything(t *testing.T) {
	body := &fakeChannel{name: "body"}
	res := newResolver(nil)
	e := New(body, &fakeChannel{name: "title"}, res, Config{}, nil)

	got, err := e.Search(context.Background(), "?! a", 10)
	require.NoError(t, err)
	assert.Empty(t, got.Results)
	assert.NotNil(t, got.Results)
	assert.Zero(t, body.gotK.Load())
	assert.Zero(t, res.calls.Load())
}

func TestSearchRejectsBadLimit(t *testing.T) {
	e := New(&fakeChannel{name: "body"}, &fakeChannel{name: "title"}, newResolver(nil), Config{}, nil)
	_, err := e.Search(context.Background(), "cat", 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	_, err = e.SearchFused(context.Background(), "cat", -1, merger.DefaultWeights)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSearchFused(t *testing.T) {
	body := &fakeChannel{name: "body", docs: scored(1, 4, 2, 2)}
	title := &fakeChannel{name: "title", docs: scored(2, 1, 3, 0.5)}
	e := New(body, title, newResolver(map[uint32]string{1: "one", 2: "two", 3: "three"}), Config{}, nil)

	got, err := e.SearchFused(context.Background(), "cat dog", 10, merger.Weights{Body: 6, Title: 4})
	require.NoError(t, err)
	assert.Equal(t, []titles.Hit{{DocID: 2, Title: "two"}, {DocID: 1, Title: "one"}, {DocID: 3, Title: "three"}}, got.Results)
	require.NotNil(t, got.Weights)
	assert.InDelta(t, 0.6, got.Weights.Body, 1e-12)
	assert.Equal(t, int64(50), body.gotK.Load())
	assert.Equal(t, int64(50), title.gotK.Load())
	assert.Equal(t, 2, got.TitleMatches)
}

func TestSearchFusedWeightFallback(t *testing.T) {
	body := &fakeChannel{name: "body", docs: scored(1, 4, 2, 2)}
	title := &fakeChannel{name: "title", docs: scored(2, 1, 3, 0.5)}
	e := New(body, title, newResolver(map[uint32]string{1: "one", 2: "two", 3: "three"}), Config{}, nil)

	zero, err := e.SearchFused(context.Background(), "cat", 10, merger.Weights{})
	require.NoError(t, err)
	def, err := e.SearchFused(context.Background(), "cat", 10, merger.DefaultWeights)
	require.NoError(t, err)
	assert.Equal(t, def.Results, zero.Results)
	assert.Equal(t, merger.DefaultWeights, *zero.Weights)
}

func TestSearchFusedChannelFailure(t *testing.T) {
	failure := errors.Join(apperrors.ErrStorageRead, errors.New("bucket gone"))
	body := &fakeChannel{name: "body", docs: scored(1, 1)}
	title := &fakeChannel{name: "title", err: failure}
	res := newResolver(map[uint32]string{1: "one"})
	m := metrics.New(prometheus.NewRegistry())
	e := New(body, title, res, Config{}, m)

	_, err := e.SearchFused(context.Background(), "cat", 10, merger.DefaultWeights)
	assert.True(t, errors.Is(err, apperrors.ErrStorageRead))
	assert.ErrorContains(t, err, "title channel")
	assert.Zero(t, res.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeFused, "error")))
}

func TestSearchFusedChannelTimeout(t *testing.T) {
	body := &fakeChannel{name: "body", block: true}
	title := &fakeChannel{name: "title", docs: scored(1, 1)}
	e := New(body, title, newResolver(nil), Config{ChannelTimeout: 20 * time.Millisecond}, nil)

	_, err := e.SearchFused(context.Background(), "cat", 10, merger.DefaultWeights)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestSearchMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	body := &fakeChannel{name: "body", docs: scored(1, 1)}
	e := New(body, &fakeChannel{name: "title"}, newResolver(map[uint32]string{1: "one"}), Config{}, m)

	_, err := e.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "", 10)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeBody, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeBody, "zero_result")))
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, intersect([]string{"a", "b", "c"}, []string{"c", "b"}))
	assert.Nil(t, intersect(nil, []string{"a"}))
}
