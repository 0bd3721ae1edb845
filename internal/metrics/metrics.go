package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the recorder. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	scansTotal       *prometheus.CounterVec
	recordingsTotal  prometheus.Counter
	stopsTotal       *prometheus.CounterVec
	unexpectedExits  prometheus.Counter
	activeRecordings prometheus.Gauge
	liveConnections  prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recorder_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recorder_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	scansTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_scans_total",
		Help: "Scans handled, by resulting action and origin",
	}, []string{"action", "origin"})
	recordingsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recorder_recordings_started_total",
		Help: "Capture processes started",
	})
	stopsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_recordings_stopped_total",
		Help: "Capture processes stopped, by outcome",
	}, []string{"outcome"})
	unexpectedExits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recorder_unexpected_exits_total",
		Help: "Capture processes that exited without being stopped",
	})
	activeRecordings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_active_recordings",
		Help: "Number of registered capture processes",
	})
	liveConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_live_connections",
		Help: "Open websocket UI sessions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		scansTotal,
		recordingsTotal,
		stopsTotal,
		unexpectedExits,
		activeRecordings,
		liveConnections,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		scansTotal:       scansTotal,
		recordingsTotal:  recordingsTotal,
		stopsTotal:       stopsTotal,
		unexpectedExits:  unexpectedExits,
		activeRecordings: activeRecordings,
		liveConnections:  liveConnections,
	}
}

func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ScanHandled counts one handled scan.
func (m *Metrics) ScanHandled(action, origin string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(action, origin).Inc()
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.recordingsTotal.Inc()
	m.activeRecordings.Inc()
}

func (m *Metrics) RecordingStopped(outcome string) {
	if m == nil {
		return
	}
	m.stopsTotal.WithLabelValues(outcome).Inc()
	m.activeRecordings.Dec()
}

func (m *Metrics) UnexpectedExit() {
	if m == nil {
		return
	}
	m.unexpectedExits.Inc()
}

func (m *Metrics) LiveConnected() {
	if m == nil {
		return
	}
	m.liveConnections.Inc()
}

func (m *Metrics) LiveDisconnected() {
	if m == nil {
		return
	}
	m.liveConnections.Dec()
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
