// Package metrics exposes Prometheus instrumentation for the audio pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audio"

// Metrics holds all collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	Conversions        *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	ActiveSessions     prometheus.Gauge
	Triggers           *prometheus.CounterVec
	TriggerBytes       prometheus.Histogram
	InferenceDuration  *prometheus.HistogramVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Conversions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Converter invocations by profile and result code",
		}, []string{"profile", "result"}),
		ConversionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of converter subprocess calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}, []string{"profile"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open realtime transcription sessions",
		}),
		Triggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Realtime transcription passes by result code",
		}, []string{"result"}),
		TriggerBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trigger_buffer_bytes",
			Help:      "Buffered bytes drained per transcription pass",
			Buckets:   prometheus.ExponentialBuckets(16384, 2, 8),
		}),
		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Collaborator call latency by operation and result",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"op", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveConversion(profile, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(profile, result).Inc()
	m.ConversionDuration.WithLabelValues(profile).Observe(d.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) ObserveTrigger(result string, bufferedBytes int) {
	if m == nil {
		return
	}
	m.Triggers.WithLabelValues(result).Inc()
	m.TriggerBytes.Observe(float64(bufferedBytes))
}

func (m *Metrics) ObserveInference(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
