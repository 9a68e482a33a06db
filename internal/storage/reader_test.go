package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestFetchSingleSegment(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Put("postings_gcp/0_000.bin", []byte("xxabcdefyy"))
	r := NewReader(mem, ReaderConfig{Channel: "body", Prefix: "postings_gcp", Retry: fastRetry()})

	got, err := r.Fetch(context.Background(), []index.Location{{File: "0_000.bin", Offset: 2}}, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
}

func TestFetchSpansSegments(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Put("p/0.bin", []byte("....ab"))
	mem.Put("p/1.bin", []byte("cdefgh"))
	r := NewReader(mem, ReaderConfig{Channel: "body", Prefix: "p", BlockSize: 6, Retry: fastRetry()})

	got, err := r.Fetch(context.Background(), []index.Location{{File: "0.bin", Offset: 4}, {File: "1.bin", Offset: 0}}, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
}

func TestFetchZeroBytes(t *testing.T) {
	r := NewReader(NewMemoryBackend(), ReaderConfig{Channel: "body"})
	got, err := r.Fetch(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchLocationsTooShort(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Put("0.bin", []byte("....ab"))
	r := NewReader(mem, ReaderConfig{Channel: "body", BlockSize: 6, Retry: fastRetry()})

	_, err := r.Fetch(context.Background(), []index.Location{{File: "0.bin", Offset: 4}}, 6)
	assert.True(t, errors.Is(err, apperrors.ErrStorageRead))
}

func TestFetchOffsetBeyondBlock(t *testing.T) {
	r := NewReader(NewMemoryBackend(), ReaderConfig{Channel: "body", BlockSize: 6})
	_, err := r.Fetch(context.Background(), []index.Location{{File: "0.bin", Offset: 6}}, 6)
	assert.True(t, errors.Is(err, apperrors.ErrStorageRead))
}

func TestFetchMissingSegmentNotRetried(t *testing.T) {
	counting := &countingBackend{Backend: NewMemoryBackend()}
	r := NewReader(counting, ReaderConfig{Channel: "title", Retry: fastRetry()})

	_, err := r.Fetch(context.Background(), []index.Location{{File: "nope.bin"}}, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageRead))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), counting.calls.Load())
	assert.Equal(t, resilience.StateClosed, r.BreakerState())
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Put("0.bin", []byte("abcdef"))
	flaky := &flakyBackend{Backend: mem, failures: 2}
	r := NewReader(flaky, ReaderConfig{Channel: "body", Retry: fastRetry()})

	got, err := r.Fetch(context.Background(), []index.Location{{File: "0.bin"}}, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
}

func TestFetchBreakerOpens(t *testing.T) {
	flaky := &flakyBackend{Backend: NewMemoryBackend(), failures: 100}
	m := metrics.New(prometheus.NewRegistry())
	r := NewReader(flaky, ReaderConfig{
		Channel: "body",
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
		Metrics: m,
	})
	locs := []index.Location{{File: "0.bin"}}
	for range 2 {
		_, err := r.Fetch(context.Background(), locs, 6)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, r.BreakerState())

	_, err := r.Fetch(context.Background(), locs, 6)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PostingReadErrors.WithLabelValues("body")))
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("postings-body")))
}

func TestFetchCountsBytes(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Put("0.bin", make([]byte, 12))
	m := metrics.New(prometheus.NewRegistry())
	r := NewReader(mem, ReaderConfig{Channel: "title", Metrics: m})

	_, err := r.Fetch(context.Background(), []index.Location{{File: "0.bin"}}, 12)
	require.NoError(t, err)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.PostingBytesTotal.WithLabelValues("title")))
}

func TestLocalBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "postings_gcp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "postings_gcp", "0_000.bin"), []byte("0123456789"), 0o644))

	b := NewLocalBackend(dir)
	defer b.Close()

	p := make([]byte, 4)
	require.NoError(t, b.ReadAt(context.Background(), "postings_gcp/0_000.bin", p, 3))
	assert.Equal(t, []byte("3456"), p)

	err := b.ReadAt(context.Background(), "postings_gcp/0_000.bin", make([]byte, 4), 8)
	assert.Error(t, err)

	err = b.ReadAt(context.Background(), "postings_gcp/missing.bin", p, 0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewBackendSelection(t *testing.T) {
	b, err := NewBackend(context.Background(), configFor("local"))
	require.NoError(t, err)
	assert.IsType(t, &LocalBackend{}, b)

	_, err = NewBackend(context.Background(), configFor("gcs"))
	assert.Error(t, err)
}

type countingBackend struct {
	Backend
	calls atomic.Int32
}

func (c *countingBackend) ReadAt(ctx context.Context, name string, p []byte, off int64) error {
	c.calls.Add(1)
	return c.Backend.ReadAt(ctx, name, p, off)
}

type flakyBackend struct {
	Backend
	failures int32
	calls    atomic.Int32
}

func (f *flakyBackend) ReadAt(ctx context.Context, name string, p []byte, off int64) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("connection reset by peer")
	}
	return f.Backend.ReadAt(ctx, name, p, off)
}
