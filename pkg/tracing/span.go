// Package tracing records span trees for mining runs and logs them through
// slog. Spans propagate through contexts; the miner opens a root span per
// sampled run and the engine attaches one child span per phase.
package tracing

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

type contextKey struct{}

var (
	samplingOn   bool
	samplingRate float64
)

// Setup configures run sampling for the process. It is called once during
// startup, before any span is created. A rate of 1.0 traces every run.
func Setup(enabled bool, rate float64) {
	samplingOn = enabled
	samplingRate = rate
}

// Sampled reports whether the next run should be traced.
func Sampled() bool {
	if !samplingOn || samplingRate <= 0 {
		return false
	}
	return samplingRate >= 1 || rand.Float64() < samplingRate
}

// Span is one timed operation. Child spans attach to their parent and are
// logged with it as a tree.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
	}
}

// StartSpan opens a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the parent carried by ctx. Without a
// parent the child still times itself but belongs to no tree and is never
// logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := newSpan(name, "")
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End stamps the span's end time and duration.
func (s *Span) End() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches one attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	if s.Attrs == nil {
		s.Attrs = make(map[string]any)
	}
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Log writes the span and its descendants to slog, one line per span.
func (s *Span) Log() {
	s.logTree(0)
}

func (s *Span) logTree(depth int) {
	attrs := make([]any, 0, 8+2*len(s.Attrs))
	attrs = append(attrs,
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	)
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	slog.Info("trace span", attrs...)

	for _, child := range s.Children {
		child.logTree(depth + 1)
	}
}
