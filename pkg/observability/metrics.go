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
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names accepted by Tracer.RecordMetric.
const (
	MetricNotifications  = "notifications"   // label: result
	MetricSessionsActive = "sessions.active" // value is a delta
	MetricCache          = "registry.cache"  // label: result
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	OperationDuration *prometheus.HistogramVec
	Events            *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	Notifications     *prometheus.CounterVec
	Cache             *prometheus.CounterVec
}

// NewMetrics registers the promptd collectors on a fresh registry, along
// with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptd",
			Name:      "operation_duration_seconds",
			Help:      "Duration of registry, storage and protocol operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation", "status"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptd",
			Name:      "events_total",
			Help:      "Change events and other recorded events by name.",
		}, []string{"name"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "promptd",
			Name:      "sessions_active",
			Help:      "Open protocol sessions.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptd",
			Name:      "notifications_total",
			Help:      "Change notifications offered to session queues.",
		}, []string{"result"}),
		Cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptd",
			Name:      "registry_cache_total",
			Help:      "Registry read cache lookups.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		m.OperationDuration,
		m.Events,
		m.SessionsActive,
		m.Notifications,
		m.Cache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
