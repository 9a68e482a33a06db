// Package executor runs a query through tokenization, per-channel scoring,
// fusion and title resolution.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/titles"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/tracing"
)

const (
	ModeBody  = "body"
	ModeFused = "fused"
)

// Channel scores one index. *ranker.Scorer implements it.
type Channel interface {
	Channel() string
	Score(ctx context.Context, terms []string, k int) (ranker.Result, error)
}

// Resolver turns ranked ids into titled hits. *titles.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, ids []uint32) ([]titles.Hit, error)
}

type SearchResult struct {
	Query         string          `json:"query"`
	Mode          string          `json:"mode"`
	Terms         []string        `json:"terms"`
	Weights       *merger.Weights `json:"weights,omitempty"`
	BodyMatches   int             `json:"body_matches"`
	TitleMatches  int             `json:"title_matches"`
	UnknownTerms  []string        `json:"unknown_terms,omitempty"`
	MissingTitles int             `json:"missing_titles"`
	Results       []titles.Hit    `json:"results"`
}

type Config struct {
	// CandidateMultiplier sizes each channel's candidate pool as a multiple
	// of the requested result count.
	CandidateMultiplier int
	// ChannelTimeout bounds one channel's scoring; zero disables it.
	ChannelTimeout time.Duration
	// Weights is the fused split used when a caller passes none.
	Weights merger.Weights
}

type Executor struct {
	body     Channel
	title    Channel
	resolver Resolver
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(body, title Channel, resolver Resolver, cfg Config, m *metrics.Metrics) *Executor {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 5
	}
	if cfg.Weights == (merger.Weights{}) {
		cfg.Weights = merger.DefaultWeights
	}
	return &Executor{
		body:     body,
		title:    title,
		resolver: resolver,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// DefaultWeights returns the configured fused split.
func (e *Executor) DefaultWeights() merger.Weights { return e.cfg.Weights }

// Search ranks the body channel only and returns at most k titled hits.
func (e *Executor) Search(ctx context.Context, query string, k int) (*SearchResult, error) {
	start := time.Now()
	res, err := e.search(ctx, query, k)
	e.observe(ctx, ModeBody, res, err, time.Since(start))
	return res, err
}

func (e *Executor) search(ctx context.Context, query string, k int) (*SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", apperrors.ErrInvalidInput, k)
	}
	terms := tokenizer.Tokenize(query)
	result := &SearchResult{Query: query, Mode: ModeBody, Terms: terms, Results: []titles.Hit{}}
	if len(terms) == 0 {
		return result, nil
	}

	body, err := e.score(ctx, e.body, terms, e.candidates(k))
	if err != nil {
		return nil, err
	}
	result.BodyMatches = body.Matched
	result.UnknownTerms = body.Unknown

	docs := body.Docs
	if len(docs) > k {
		docs = docs[:k]
	}
	if err := e.resolve(ctx, result, merger.IDs(docs)); err != nil {
		return nil, err
	}
	return result, nil
}

// SearchFused ranks both channels concurrently, fuses them with w and returns
// at most k titled hits. Weights that do not sum to a positive number fall
// back to the default split.
func (e *Executor) SearchFused(ctx context.Context, query string, k int, w merger.Weights) (*SearchResult, error) {
	start := time.Now()
	res, err := e.searchFused(ctx, query, k, w)
	e.observe(ctx, ModeFused, res, err, time.Since(start))
	return res, err
}

func (e *Executor) searchFused(ctx context.Context, query string, k int, w merger.Weights) (*SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", apperrors.ErrInvalidInput, k)
	}
	w = w.Normalize()
	terms := tokenizer.Tokenize(query)
	result := &SearchResult{Query: query, Mode: ModeFused, Terms: terms, Weights: &w, Results: []titles.Hit{}}
	if len(terms) == 0 {
		return result, nil
	}

	pool := e.candidates(k)
	var body, title ranker.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		body, err = e.score(gctx, e.body, terms, pool)
		return err
	})
	g.Go(func() error {
		var err error
		title, err = e.score(gctx, e.title, terms, pool)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.BodyMatches = body.Matched
	result.TitleMatches = title.Matched
	result.UnknownTerms = intersect(body.Unknown, title.Unknown)

	_, span := tracing.StartChildSpan(ctx, "fuse")
	ids := merger.Fuse(body.Docs, title.Docs, w, k)
	span.SetAttr("fused", len(ids))
	span.End()

	if err := e.resolve(ctx, result, ids); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) candidates(k int) int {
	return k * e.cfg.CandidateMultiplier
}

func (e *Executor) score(ctx context.Context, ch Channel, terms []string, k int) (ranker.Result, error) {
	name := ch.Channel()
	ctx, span := tracing.StartChildSpan(ctx, "channel."+name)
	defer span.End()
	start := time.Now()

	var res ranker.Result
	err := resilience.WithTimeout(ctx, e.cfg.ChannelTimeout, name+" channel", func(ctx context.Context) error {
		var err error
		res, err = ch.Score(ctx, terms, k)
		return err
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return ranker.Result{}, fmt.Errorf("scoring %s channel: %w", name, err)
	}
	span.SetAttr("matched", res.Matched)
	span.SetAttr("unknown_terms", len(res.Unknown))
	if e.metrics != nil {
		e.metrics.ChannelLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		e.metrics.ChannelCandidates.WithLabelValues(name).Observe(float64(res.Matched))
		e.metrics.UnknownTermsTotal.WithLabelValues(name).Add(float64(len(res.Unknown)))
	}
	return res, nil
}

func (e *Executor) resolve(ctx context.Context, result *SearchResult, ids []uint32) error {
	ctx, span := tracing.StartChildSpan(ctx, "resolve")
	defer span.End()
	hits, err := e.resolver.Resolve(ctx, ids)
	if err != nil {
		return err
	}
	result.Results = hits
	result.MissingTitles = len(ids) - len(hits)
	span.SetAttr("hits", len(hits))
	return nil
}

func (e *Executor) observe(ctx context.Context, mode string, res *SearchResult, err error, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(res.Results) == 0:
		outcome = "zero_result"
	}
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(mode, outcome).Inc()
		e.metrics.SearchLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
	log := e.logger
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}
	if err != nil {
		log.Warn("query failed", "mode", mode, "error", err, "elapsed", elapsed)
		return
	}
	log.Info("query executed",
		"mode", mode,
		"query", res.Query,
		"terms", res.Terms,
		"body_matches", res.BodyMatches,
		"title_matches", res.TitleMatches,
		"returned", len(res.Results),
		"elapsed", elapsed,
	)
}

// intersect returns the elements of a that are also in b, in a's order.
func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := in[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
