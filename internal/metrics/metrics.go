// Package metrics holds the Prometheus collectors exported at /metrics.
//
// Every recording method is safe to call on a nil *Metrics so that services
// can be constructed without instrumentation in tests and CLI commands.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vpadmin"

// Metrics bundles the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	navSyncs        *prometheus.CounterVec
	registryWrites  prometheus.Counter
	rewrittenFiles  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	contentScanDocs prometheus.Gauge
}

// New creates the collectors on a private registry, with the Go runtime and
// process collectors included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		navSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "syncs_total",
			Help:      "Navigation artifact syncs by result.",
		}, []string{"result"}),
		registryWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "writes_total",
			Help:      "Category registry file writes.",
		}),
		rewrittenFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "categories",
			Name:      "rewritten_files_total",
			Help:      "Posts whose categories were rewritten, by mode.",
		}, []string{"mode"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
		contentScanDocs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "documents",
			Help:      "Markdown documents seen by the last usage scan.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.navSyncs,
		m.registryWrites,
		m.rewrittenFiles,
		m.httpRequests,
		m.contentScanDocs,
	)
	return m
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) NavSynced(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.navSyncs.WithLabelValues(result).Inc()
}

func (m *Metrics) RegistryWritten() {
	if m == nil {
		return
	}
	m.registryWrites.Inc()
}

func (m *Metrics) FilesRewritten(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rewrittenFiles.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) Scanned(n int) {
	if m == nil {
		return
	}
	m.contentScanDocs.Set(float64(n))
}

func (m *Metrics) Request(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
