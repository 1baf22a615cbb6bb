package spies

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// SpanRecord is one captured span. Status and EndAttributes are set once the span is finished.
type SpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
}

// SpySpanContext is the SpanContext handed out by TracingCollectorSpy.
type SpySpanContext struct {
	spy   *TracingCollectorSpy
	index int
}

// SetStatus implements circulation.SpanContext.
func (c *SpySpanContext) SetStatus(status string) {
	c.spy.mu.Lock()
	defer c.spy.mu.Unlock()

	c.spy.spans[c.index].Status = status
}

// AddAttribute implements circulation.SpanContext.
func (c *SpySpanContext) AddAttribute(key, value string) {
	c.spy.mu.Lock()
	defer c.spy.mu.Unlock()

	if c.spy.spans[c.index].EndAttributes == nil {
		c.spy.spans[c.index].EndAttributes = map[string]string{}
	}

	c.spy.spans[c.index].EndAttributes[key] = value
}

// TracingCollectorSpy captures TracingCollector calls.
type TracingCollectorSpy struct {
	mu    sync.Mutex
	spans []SpanRecord
}

// NewTracingCollectorSpy creates an empty TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan implements circulation.TracingCollector.
func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, SpanRecord{Name: name, StartAttributes: maps.Clone(attrs)})

	return ctx, &SpySpanContext{spy: s, index: len(s.spans) - 1}
}

// FinishSpan implements circulation.TracingCollector.
func (s *TracingCollectorSpy) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	spyCtx, ok := spanCtx.(*SpySpanContext)
	if !ok || spyCtx.spy != s {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	span := &s.spans[spyCtx.index]
	span.Status = status
	span.Finished = true
	if span.EndAttributes == nil {
		span.EndAttributes = map[string]string{}
	}

	maps.Copy(span.EndAttributes, attrs)
}

// Spans returns a copy of all captured spans.
func (s *TracingCollectorSpy) Spans() []SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpanRecord(nil), s.spans...)
}

// FindSpan returns the first span with the given name.
func (s *TracingCollectorSpy) FindSpan(name string) (SpanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, span := range s.spans {
		if span.Name == name {
			return span, true
		}
	}

	return SpanRecord{}, false
}
