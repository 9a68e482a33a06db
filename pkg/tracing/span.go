// Package tracing records span trees for sampled requests and logs them
// through slog when the root span ends. Spans travel in the context; every
// method on a nil *Span is a no-op, so unsampled requests pay almost nothing.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
)

type contextKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	root      bool
	mu        sync.Mutex
}

// Tracer decides which requests are traced.
type Tracer struct {
	enabled    bool
	sampleRate float64
	logger     *slog.Logger
}

func NewTracer(cfg config.TracingConfig) *Tracer {
	return &Tracer{
		enabled:    cfg.Enabled,
		sampleRate: cfg.SampleRate,
		logger:     slog.Default().With("component", "tracing"),
	}
}

func (t *Tracer) sampled() bool {
	if t == nil || !t.enabled || t.sampleRate <= 0 {
		return false
	}
	return t.sampleRate >= 1 || rand.Float64() < t.sampleRate
}

// StartSpan begins a root span if the request is sampled. An unsampled call
// returns ctx unchanged and a nil span.
func (t *Tracer) StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if !t.sampled() {
		return ctx, nil
	}
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
		root:      true,
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent span
// nothing is recorded.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

// End records the span's duration. Ending a root span logs the whole tree.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
	if s.root {
		s.Log()
	}
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// Log writes the span tree to slog.
func (s *Span) Log() {
	if s == nil {
		return
	}
	s.logRecursive(slog.Default(), 0)
}

func (s *Span) logRecursive(log *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	log.Info("span", attrs...)
	for _, child := range children {
		child.logRecursive(log, depth+1)
	}
}

// Middleware opens a root span per sampled HTTP request, using the request
// ID as the trace ID. It must run inside the RequestID middleware.
func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := t.StartSpan(r.Context(), r.Method+" "+r.URL.Path, logger.RequestID(r.Context()))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
