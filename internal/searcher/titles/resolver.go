package titles

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
)

// Hit is one resolved search result.
type Hit struct {
	DocID uint32 `json:"id"`
	Title string `json:"title"`
}

// Loader opens a title store. The Resolver calls it at most once per
// successful load.
type Loader func(ctx context.Context) (Store, error)

type loadedStore struct{ Store }

// Resolver owns the title store. The store is opened on first use; concurrent
// first callers share one load, and a failed load is retried by the next
// caller. Once loaded the store is never replaced.
type Resolver struct {
	load    Loader
	group   singleflight.Group
	store   atomic.Pointer[loadedStore]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewResolver(load Loader, m *metrics.Metrics) *Resolver {
	return &Resolver{
		load:    load,
		metrics: m,
		logger:  slog.Default().With("component", "title-resolver"),
	}
}

// NewStaticResolver wraps an already open store.
func NewStaticResolver(store Store, m *metrics.Metrics) *Resolver {
	r := NewResolver(func(context.Context) (Store, error) { return store, nil }, m)
	r.store.Store(&loadedStore{store})
	return r
}

// Loaded reports whether the store has been opened.
func (r *Resolver) Loaded() bool {
	return r.store.Load() != nil
}

// Store returns the title store, opening it if needed. The load itself is not
// cancelled when ctx is; only this caller stops waiting.
func (r *Resolver) Store(ctx context.Context) (Store, error) {
	if s := r.store.Load(); s != nil {
		return s.Store, nil
	}
	ch := r.group.DoChan("load", func() (any, error) {
		if s := r.store.Load(); s != nil {
			return s.Store, nil
		}
		store, err := r.load(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.Error("title store load failed", "error", err)
			return nil, err
		}
		r.store.Store(&loadedStore{store})
		r.logger.Info("title store ready")
		return store, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrTitleStore, res.Err)
		}
		return res.Val.(Store), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve returns (id, title) pairs in the order of ids. Ids with no known
// title are dropped.
func (r *Resolver) Resolve(ctx context.Context, ids []uint32) ([]Hit, error) {
	if len(ids) == 0 {
		return []Hit{}, nil
	}
	store, err := r.Store(ctx)
	if err != nil {
		return nil, err
	}
	found, err := store.Titles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up %d titles: %w", apperrors.ErrTitleStore, len(ids), err)
	}
	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		if title, ok := found[id]; ok {
			hits = append(hits, Hit{DocID: id, Title: title})
		}
	}
	if missing := len(ids) - len(hits); missing > 0 {
		if r.metrics != nil {
			r.metrics.MissingTitlesTotal.Add(float64(missing))
		}
		r.logger.Debug("documents without title dropped", "missing", missing)
	}
	return hits, nil
}
