// Package handler exposes the search executor over HTTP and the JSON RPC
// transport, with result caching and search analytics.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/proto"
)

// Searcher runs queries. *executor.Executor implements it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) (*executor.SearchResult, error)
	SearchFused(ctx context.Context, query string, k int, w merger.Weights) (*executor.SearchResult, error)
	DefaultWeights() merger.Weights
}

type Handler struct {
	searcher     Searcher
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a handler. queryCache and tracker may be nil.
func New(s Searcher, queryCache *cache.QueryCache, tracker analytics.Tracker, defaultLimit, maxResults int) *Handler {
	return &Handler{
		searcher:     s,
		cache:        queryCache,
		tracker:      tracker,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Response is the HTTP search payload.
type Response struct {
	*executor.SearchResult
	CacheHit  bool  `json:"cache_hit"`
	LatencyMs int64 `json:"latency_ms"`
}

type request struct {
	mode    string
	query   string
	limit   int
	weights merger.Weights
}

// Search serves GET /api/v1/search?q=...&limit=N over the body channel.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := h.parse(r, executor.ModeBody)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serve(w, r, req)
}

// SearchFused serves GET /api/v1/search/fused?q=...&limit=N&body_weight=B&title_weight=T.
// Omitted weights take the configured defaults.
func (h *Handler) SearchFused(w http.ResponseWriter, r *http.Request) {
	req, err := h.parse(r, executor.ModeFused)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serve(w, r, req)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, req request) {
	start := time.Now()
	result, cacheHit, err := h.run(r.Context(), req)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		msg := "search failed"
		if status == http.StatusBadRequest {
			msg = err.Error()
		}
		h.writeError(w, status, msg)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"mode", req.mode,
		"query", req.query,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.writeJSON(w, http.StatusOK, Response{SearchResult: result, CacheHit: cacheHit, LatencyMs: latencyMs})
}

// run executes req through the cache and records an analytics event.
func (h *Handler) run(ctx context.Context, req request) (*executor.SearchResult, bool, error) {
	start := time.Now()
	compute := func() (*executor.SearchResult, error) {
		if req.mode == executor.ModeFused {
			return h.searcher.SearchFused(ctx, req.query, req.limit, req.weights)
		}
		return h.searcher.Search(ctx, req.query, req.limit)
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		key := cache.Key{Mode: req.mode, Query: req.query, Limit: req.limit, Weights: req.weights}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}

	h.track(ctx, req, result, cacheHit, err, time.Since(start))
	return result, cacheHit, err
}

func (h *Handler) track(ctx context.Context, req request, result *executor.SearchResult, cacheHit bool, err error, elapsed time.Duration) {
	if h.tracker == nil {
		return
	}
	event := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Mode:      req.mode,
		Query:     req.query,
		LatencyMs: elapsed.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	switch {
	case err != nil:
		event.Type = analytics.EventFailed
		event.Error = err.Error()
	default:
		event.Terms = result.Terms
		event.UnknownTerms = result.UnknownTerms
		event.BodyMatches = result.BodyMatches
		event.TitleMatches = result.TitleMatches
		event.Returned = len(result.Results)
		event.MissingTitles = result.MissingTitles
		if event.Returned == 0 {
			event.Type = analytics.EventZeroResult
		}
	}
	h.tracker.Track(event)
}

func (h *Handler) parse(r *http.Request, mode string) (request, error) {
	q := r.URL.Query()
	req := request{mode: mode, query: q.Get("q")}
	if req.query == "" {
		return req, errors.New("query parameter 'q' is required")
	}
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		return req, err
	}
	req.limit = limit
	if mode != executor.ModeFused {
		return req, nil
	}
	req.weights = h.searcher.DefaultWeights()
	if req.weights.Body, err = weight(q.Get("body_weight"), "body_weight", req.weights.Body); err != nil {
		return req, err
	}
	if req.weights.Title, err = weight(q.Get("title_weight"), "title_weight", req.weights.Title); err != nil {
		return req, err
	}
	return req, nil
}

func (h *Handler) limit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, h.maxResults), nil
}

func weight(raw, name string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a non-negative number", name)
	}
	return v, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// RegisterRPC exposes both search modes and a health probe on s.
func (h *Handler) RegisterRPC(s *grpc.Server) {
	s.Register(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in proto.SearchRequest
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("%w: decoding search request: %v", apperrors.ErrInvalidInput, err)
		}
		req, err := h.rpcRequest(executor.ModeBody, in.Query, in.Limit)
		if err != nil {
			return nil, err
		}
		return h.rpcSearch(ctx, req)
	})
	s.Register(proto.MethodSearchFused, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in proto.SearchFusedRequest
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("%w: decoding fused search request: %v", apperrors.ErrInvalidInput, err)
		}
		req, err := h.rpcRequest(executor.ModeFused, in.Query, in.Limit)
		if err != nil {
			return nil, err
		}
		req.weights = merger.Weights{Body: in.BodyWeight, Title: in.TitleWeight}
		if req.weights == (merger.Weights{}) {
			req.weights = h.searcher.DefaultWeights()
		}
		return h.rpcSearch(ctx, req)
	})
	s.Register(proto.MethodHealth, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}

func (h *Handler) rpcRequest(mode, query string, limit int32) (request, error) {
	if query == "" {
		return request{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query is required")
	}
	n := h.defaultLimit
	if limit > 0 {
		n = min(int(limit), h.maxResults)
	}
	return request{mode: mode, query: query, limit: n}, nil
}

func (h *Handler) rpcSearch(ctx context.Context, req request) (*proto.SearchResponse, error) {
	start := time.Now()
	result, cacheHit, err := h.run(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &proto.SearchResponse{
		Query:     result.Query,
		Mode:      result.Mode,
		Results:   make([]proto.SearchResult, len(result.Results)),
		CacheHit:  cacheHit,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	for i, hit := range result.Results {
		resp.Results[i] = proto.SearchResult{DocID: hit.DocID, Title: hit.Title}
	}
	return resp, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
