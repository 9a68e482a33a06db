package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/resilience"
)

// DefaultBlockSize is the segment size the index builder rolls files at.
const DefaultBlockSize = 1_999_998

// ReaderConfig configures a Reader for one channel. A zero BlockSize means
// DefaultBlockSize; a negative one disables block clamping.
type ReaderConfig struct {
	Channel   string
	Prefix    string
	BlockSize int64
	Retry     resilience.RetryConfig
	Breaker   resilience.CircuitBreakerConfig
	Metrics   *metrics.Metrics
}

// Reader assembles a term's posting bytes from the segments its locations
// point at. A posting list that crosses a segment boundary continues at the
// next location; every location except the last is read to the end of its
// block.
type Reader struct {
	backend   Backend
	channel   string
	prefix    string
	blockSize int64
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewReader(backend Backend, cfg ReaderConfig) *Reader {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	retry := cfg.Retry
	if retry.Retryable == nil {
		retry.Retryable = isTransient
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = isTransient
	}
	if breakerCfg.OnStateChange == nil && cfg.Metrics != nil {
		gauge := cfg.Metrics.CircuitBreakerState
		breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Reader{
		backend:   backend,
		channel:   cfg.Channel,
		prefix:    cfg.Prefix,
		blockSize: cfg.BlockSize,
		retry:     retry,
		breaker:   resilience.NewCircuitBreaker("postings-"+cfg.Channel, breakerCfg),
		metrics:   cfg.Metrics,
		logger:    slog.Default().With("component", "posting-reader", "channel", cfg.Channel),
	}
}

// Fetch returns exactly n bytes starting at locs[0]. Any backend failure or
// a location list too short to cover n bytes is reported as ErrStorageRead.
func (r *Reader) Fetch(ctx context.Context, locs []index.Location, n int) ([]byte, error) {
	start := time.Now()
	buf, err := r.fetch(ctx, locs, n)
	if err != nil {
		if r.metrics != nil {
			r.metrics.PostingReadErrors.WithLabelValues(r.channel).Inc()
		}
		r.logger.Error("posting fetch failed", "locations", len(locs), "bytes", n, "error", err)
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.PostingBytesTotal.WithLabelValues(r.channel).Add(float64(n))
	}
	r.logger.Debug("posting fetched", "locations", len(locs), "bytes", n, "elapsed", time.Since(start))
	return buf, nil
}

func (r *Reader) fetch(ctx context.Context, locs []index.Location, n int) ([]byte, error) {
	buf := make([]byte, n)
	filled := 0
	for _, loc := range locs {
		if filled == n {
			break
		}
		chunk := int64(n - filled)
		if r.blockSize > 0 {
			chunk = min(chunk, r.blockSize-loc.Offset)
		}
		if chunk <= 0 {
			return nil, fmt.Errorf("%w: offset %d in %s is beyond block size %d",
				apperrors.ErrStorageRead, loc.Offset, loc.File, r.blockSize)
		}
		name := path.Join(r.prefix, loc.File)
		dst := buf[filled : filled+int(chunk)]
		if err := r.readSegment(ctx, name, dst, loc.Offset); err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageRead, err)
		}
		filled += int(chunk)
	}
	if filled != n {
		return nil, fmt.Errorf("%w: locations cover %d of %d bytes", apperrors.ErrStorageRead, filled, n)
	}
	return buf, nil
}

func (r *Reader) readSegment(ctx context.Context, name string, p []byte, off int64) error {
	return resilience.Retry(ctx, "read "+name, r.retry, func() error {
		return r.breaker.Execute(func() error {
			return r.backend.ReadAt(ctx, name, p, off)
		})
	})
}

// BreakerState reports the reader's circuit breaker state.
func (r *Reader) BreakerState() resilience.State {
	return r.breaker.GetState()
}

// isTransient reports whether a read failure may succeed on another attempt.
// Missing segments and cancelled requests will not.
func isTransient(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, resilience.ErrCircuitOpen)
}
