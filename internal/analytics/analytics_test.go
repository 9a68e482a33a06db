package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/kafka"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Event(nil), f.events...)
}

func TestCollectorPublishesTrackedEvents(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Mode: "body", Query: "cat"})
	c.Track(SearchEvent{Type: EventZeroResult, Mode: "fused", Query: "zebra"})
	c.Close()

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, "cat", events[0].Key)
	assert.Equal(t, "body", events[0].Headers["mode"])
	assert.Equal(t, "zero_result", events[1].Headers["type"])
}

func TestCollectorDropsAfterClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Close()
	c.Close()

	assert.NotPanics(t, func() { c.Track(SearchEvent{Query: "late"}) })
	assert.Empty(t, pub.published())
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Track(SearchEvent{Query: "cat"})
	c.Close()
	assert.Empty(t, pub.published())
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Mode: "body", Query: "cat", BodyMatches: 4, Returned: 3, LatencyMs: 10})
	agg.Record(SearchEvent{Type: EventSearch, Mode: "body", Query: "cat", BodyMatches: 2, Returned: 2, LatencyMs: 20, CacheHit: true})
	agg.Record(SearchEvent{Type: EventSearch, Mode: "fused", Query: "dog", BodyMatches: 0, TitleMatches: 5, Returned: 2, MissingTitles: 1, LatencyMs: 30})
	agg.Record(SearchEvent{Type: EventZeroResult, Mode: "body", Query: "zebra", UnknownTerms: []string{"zebra"}, LatencyMs: 5})
	agg.Record(SearchEvent{Type: EventFailed, Mode: "fused", Query: "cat dog", Error: "storage read failed"})

	stats := agg.Stats()
	assert.Equal(t, int64(5), stats.TotalSearches)
	assert.Equal(t, int64(3), stats.SearchesByMode["body"])
	assert.Equal(t, int64(2), stats.SearchesByMode["fused"])
	assert.Equal(t, int64(1), stats.FailedSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.MissingTitles)
	assert.InDelta(t, 1.5, stats.AvgBodyMatches, 1e-9)
	assert.InDelta(t, 5.0, stats.AvgTitleMatches, 1e-9)
	assert.InDelta(t, 16.25, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), stats.P99LatencyMs)

	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "cat", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, stats.ZeroResultQueries)
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, stats.TopUnknownTerms)
}

func TestAggregatorEmpty(t *testing.T) {
	stats := NewAggregator().Stats()
	assert.Zero(t, stats.TotalSearches)
	assert.Zero(t, stats.P50LatencyMs)
	assert.Empty(t, stats.TopQueries)
}

func TestTopNBreaksTiesAlphabetically(t *testing.T) {
	got := topN(map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, []QueryCount{{"c", 5}, {"a", 2}, {"b", 2}}, got)
}

func TestHandleEventSkipsGarbage(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	raw, err := json.Marshal(SearchEvent{Type: EventSearch, Mode: "body", Query: "cat", Returned: 1})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("cat"), raw))
	require.NoError(t, handle(context.Background(), nil, []byte("{not json")))

	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

type fakeSnapshots struct {
	snaps []AggregatedStats
	err   error
	limit int
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Mode: "body", Query: "cat", Returned: 1, Timestamp: time.Now()})
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}

func TestHandlerSnapshots(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), nil).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), &fakeSnapshots{}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/?limit=0", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("listed", func(t *testing.T) {
		store := &fakeSnapshots{snaps: []AggregatedStats{{TotalSearches: 7}}}
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), store).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/?limit=3", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, store.limit)

		var got []AggregatedStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, int64(7), got[0].TotalSearches)
	})
	t.Run("store error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewAggregator(), &fakeSnapshots{err: errors.New("db gone")}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
