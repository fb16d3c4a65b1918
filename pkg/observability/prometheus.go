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

import "context"

// PrometheusTracer records finished spans as latency observations and
// forwards metrics and events to Prometheus collectors.
type PrometheusTracer struct {
	metrics *Metrics
}

// NewPrometheusTracer creates a tracer reporting into m.
func NewPrometheusTracer(m *Metrics) *PrometheusTracer {
	return &PrometheusTracer{metrics: m}
}

// Metrics returns the underlying collectors.
func (t *PrometheusTracer) Metrics() *Metrics { return t.metrics }

// StartSpan creates a span linked to any parent in ctx.
func (t *PrometheusTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	return startSpan(ctx, name, opts)
}

// EndSpan observes the span duration under its name and status.
func (t *PrometheusTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	finishSpan(span)
	status := span.Status.Code
	if status == StatusUnset {
		status = StatusOK
	}
	t.metrics.OperationDuration.WithLabelValues(span.Name, status.String()).Observe(span.Duration.Seconds())
}

// RecordMetric maps known metric names onto collectors.
func (t *PrometheusTracer) RecordMetric(name string, value float64, labels map[string]string) {
	switch name {
	case MetricNotifications:
		t.metrics.Notifications.WithLabelValues(labels["result"]).Add(value)
	case MetricSessionsActive:
		t.metrics.SessionsActive.Add(value)
	case MetricCache:
		t.metrics.Cache.WithLabelValues(labels["result"]).Add(value)
	}
}

// RecordEvent counts the event by name.
func (t *PrometheusTracer) RecordEvent(_ context.Context, name string, _ map[string]interface{}) {
	t.metrics.Events.WithLabelValues(name).Inc()
}

// Flush is a no-op; Prometheus pulls.
func (t *PrometheusTracer) Flush(context.Context) error { return nil }

var _ Tracer = (*PrometheusTracer)(nil)
