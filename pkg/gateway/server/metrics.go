package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	CallsActive   prometheus.Gauge
	CallsTotal    *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	AudioBytes    *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	RecorderFails prometheus.Counter
}

// NewMetrics registers all instruments under the given namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voxbridge"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calls_active",
		Help:      "Number of bridged calls currently live",
	})
	callsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_total",
		Help:      "Total bridged calls by backend and outcome",
	}, []string{"backend", "outcome"})
	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Bridged call duration in seconds",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"backend"})
	audioBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Audio bytes relayed by direction",
	}, []string{"direction"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors by classified type",
	}, []string{"error_type"})
	recorderFails := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recorder_failures_total",
		Help:      "Call record deliveries that failed",
	})

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		audioBytes,
		errorsTotal,
		recorderFails,
	)

	return &Metrics{
		registry:      registry,
		CallsActive:   callsActive,
		CallsTotal:    callsTotal,
		CallDuration:  callDuration,
		AudioBytes:    audioBytes,
		ErrorsTotal:   errorsTotal,
		RecorderFails: recorderFails,
	}
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCallEnd records one finished call.
func (m *Metrics) RecordCallEnd(backend, outcome string, duration time.Duration) {
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(backend, outcome).Inc()
	m.CallDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordCallStart records one call going live.
func (m *Metrics) RecordCallStart() {
	m.CallsActive.Inc()
}

// RecordError counts one classified error.
func (m *Metrics) RecordError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordAudio counts relayed audio bytes for one direction.
func (m *Metrics) RecordAudio(direction string, n int) {
	m.AudioBytes.WithLabelValues(direction).Add(float64(n))
}
