// Package metrics exposes Prometheus collectors for tool calls, uploads and the auth gate.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered by New.
type Metrics struct {
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	Uploads      *prometheus.CounterVec
	UploadBytes  *prometheus.CounterVec
	AuthDenied   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry, plus the Go and process
// collectors, so tests can build as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgen_tool_calls_total",
				Help: "Tool invocations by tool and outcome",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgen_tool_duration_seconds",
				Help:    "Tool invocation latency",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
			},
			[]string{"tool"},
		),
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgen_uploads_total",
				Help: "Storage uploads by backend and outcome",
			},
			[]string{"backend", "status"},
		),
		UploadBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgen_upload_bytes_total",
				Help: "Bytes written to storage by backend",
			},
			[]string{"backend"},
		),
		AuthDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgen_auth_denied_total",
				Help: "Requests rejected by the API key gate",
			},
			[]string{"reason"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ToolCalls, m.ToolDuration, m.Uploads, m.UploadBytes, m.AuthDenied,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTool records one tool call.
func (m *Metrics) ObserveTool(tool string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(took.Seconds())
}

// ObserveUpload records one storage upload. backend may be empty when the
// upload failed before a backend was resolved.
func (m *Metrics) ObserveUpload(backend string, size int, err error) {
	if backend == "" {
		backend = "unresolved"
	}
	if err != nil {
		m.Uploads.WithLabelValues(backend, "error").Inc()
		return
	}
	m.Uploads.WithLabelValues(backend, "ok").Inc()
	m.UploadBytes.WithLabelValues(backend).Add(float64(size))
}

// ObserveAuthDenied records a rejected request.
func (m *Metrics) ObserveAuthDenied(missing bool) {
	reason := "invalid"
	if missing {
		reason = "missing"
	}
	m.AuthDenied.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
