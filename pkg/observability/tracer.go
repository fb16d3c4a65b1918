// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tracer instruments registry, storage and session operations. All
// methods are safe for concurrent use.
type Tracer interface {
	// StartSpan returns a span linked to any parent span in ctx and a
	// context carrying it. Pair every call with EndSpan.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span)
	EndSpan(span *Span)

	// RecordMetric adds value to a named metric. Unknown names are dropped.
	RecordMetric(name string, value float64, labels map[string]string)
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})

	Flush(ctx context.Context) error
}

type contextKey struct{}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// ContextWithSpan returns ctx carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, contextKey{}, span)
}

// startSpan builds a span and inherits the trace of the parent in ctx.
func startSpan(ctx context.Context, name string, opts []SpanOption) (context.Context, *Span) {
	span := &Span{
		SpanID:    uuid.NewString(),
		Name:      name,
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(span)
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = uuid.NewString()
	}
	return ContextWithSpan(ctx, span), span
}

func finishSpan(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
}

// NoOpTracer keeps span timing and exports nothing. Components default to
// it when no tracer is configured.
type NoOpTracer struct{}

// NewNoOpTracer creates a no-op tracer.
func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (*NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	return startSpan(ctx, name, opts)
}

func (*NoOpTracer) EndSpan(span *Span) {
	if span != nil {
		finishSpan(span)
	}
}

func (*NoOpTracer) RecordMetric(string, float64, map[string]string) {}

func (*NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

func (*NoOpTracer) Flush(context.Context) error { return nil }

var _ Tracer = (*NoOpTracer)(nil)
