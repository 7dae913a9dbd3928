package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Connection metrics
	ConnectAttempts prometheus.Counter
	ConnectFailures *prometheus.CounterVec
	ConnectionState prometheus.Gauge

	// Autosave metrics
	SavesTotal   *prometheus.CounterVec
	SaveDuration prometheus.Histogram

	// Timer metrics
	TimersStarted   prometheus.Counter
	MilestonesFired *prometheus.CounterVec

	// WebSocket status stream
	WSConnections prometheus.Gauge

	// System
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxwork_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxwork_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		ConnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxwork_connect_attempts_total",
			Help: "Total realtime connect attempts",
		}),
		ConnectFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxwork_connect_failures_total",
				Help: "Realtime connect failures by stage",
			},
			[]string{"stage"},
		),
		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxwork_connection_state",
			Help: "Current connection state (0 disconnected, 1 connecting, 2 connected)",
		}),

		SavesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxwork_autosave_writes_total",
				Help: "Workspace autosave writes by result",
			},
			[]string{"result"},
		),
		SaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxwork_autosave_write_duration_seconds",
			Help:    "Workspace autosave write duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		TimersStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxwork_timers_started_total",
			Help: "Total timers started",
		}),
		MilestonesFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxwork_timer_milestones_fired_total",
				Help: "Timer milestones relayed by kind",
			},
			[]string{"kind"},
		),

		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxwork_ws_connections",
			Help: "Active status stream WebSocket connections",
		}),

		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxwork_uptime_seconds",
			Help: "Service uptime in seconds",
		}),
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSave records an autosave write result.
func (m *Metrics) RecordSave(result string, duration time.Duration) {
	m.SavesTotal.WithLabelValues(result).Inc()
	m.SaveDuration.Observe(duration.Seconds())
}

// RecordMilestone records a fired timer milestone.
func (m *Metrics) RecordMilestone(kind string) {
	m.MilestonesFired.WithLabelValues(kind).Inc()
}

// SetConnectionState publishes the connection state gauge.
func (m *Metrics) SetConnectionState(v float64) {
	m.ConnectionState.Set(v)
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
