package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Kiosk controller metrics
	KioskOperations        *prometheus.CounterVec
	KioskOperationDuration *prometheus.HistogramVec
	KioskPrepared          prometheus.Gauge

	// Launch resolution metrics
	LaunchResolutions *prometheus.CounterVec

	// Platform bridge metrics
	PlatformCalls    *prometheus.CounterVec
	PlatformDuration *prometheus.HistogramVec

	// Boot guard metrics
	BootSignals *prometheus.CounterVec

	// Broadcast metrics
	EventsPublished *prometheus.CounterVec
	WSConnections   prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a collector backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskhelper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kioskhelper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Kiosk controller metrics
		KioskOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskhelper_kiosk_operations_total",
				Help: "Kiosk controller operations by terminal result code",
			},
			[]string{"operation", "result"},
		),
		KioskOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kioskhelper_kiosk_operation_duration_seconds",
				Help:    "Kiosk controller operation duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		KioskPrepared: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kioskhelper_kiosk_prepared",
				Help: "1 while the persisted kiosk session is applied",
			},
		),

		// Launch resolution metrics
		LaunchResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskhelper_launch_resolutions_total",
				Help: "Launch resolutions by the stage that produced the result",
			},
			[]string{"stage"},
		),

		// Platform bridge metrics
		PlatformCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskhelper_platform_calls_total",
				Help: "Calls to the device platform bridge",
			},
			[]string{"operation", "status"},
		),
		PlatformDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kioskhelper_platform_call_duration_seconds",
				Help:    "Platform bridge call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		// Boot guard metrics
		BootSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskhelper_boot_signals_total",
				Help: "Restart lifecycle signals by outcome",
			},
			[]string{"signal", "outcome"},
		),

		// Broadcast metrics
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskhelper_events_published_total",
				Help: "Broadcast events by type",
			},
			[]string{"event"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kioskhelper_ws_connections",
				Help: "Number of active event stream connections",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "kioskhelper_uptime_seconds",
			Help: "Agent uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordKioskOperation records one controller operation and its result code
func (m *Metrics) RecordKioskOperation(operation, result string, duration time.Duration) {
	m.KioskOperations.WithLabelValues(operation, result).Inc()
	m.KioskOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetKioskPrepared mirrors the persisted applied flag
func (m *Metrics) SetKioskPrepared(prepared bool) {
	if prepared {
		m.KioskPrepared.Set(1)
		return
	}
	m.KioskPrepared.Set(0)
}

// RecordLaunchResolution records the stage that ended a launch resolution
func (m *Metrics) RecordLaunchResolution(stage string) {
	m.LaunchResolutions.WithLabelValues(stage).Inc()
}

// RecordPlatformCall records a bridge call
func (m *Metrics) RecordPlatformCall(operation, status string, duration time.Duration) {
	m.PlatformCalls.WithLabelValues(operation, status).Inc()
	m.PlatformDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBootSignal records a restart signal and what the guard did with it
func (m *Metrics) RecordBootSignal(signal, outcome string) {
	m.BootSignals.WithLabelValues(signal, outcome).Inc()
}

// RecordEvent records a published broadcast
func (m *Metrics) RecordEvent(event string) {
	m.EventsPublished.WithLabelValues(event).Inc()
}

// IncWSConnections increments event stream connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements event stream connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
