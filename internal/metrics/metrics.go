package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "updatewatch"

var statuses = []string{"disconnected", "reconnecting", "connected"}

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	status          *prometheus.GaugeVec
	connectAttempts prometheus.Counter
	connects        prometheus.Counter
	failures        prometheus.Counter
	retryDelay      prometheus.Histogram
	frames          prometheus.Counter
	events          *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	storeDropped    prometheus.Counter
	storeWritten    prometheus.Counter
	storeErrors     prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "stream",
			Name:      "status",
			Help:      "1 for the current stream connection status, 0 otherwise",
		}, []string{"status"}),

		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "stream",
			Name:      "connect_attempts_total",
			Help:      "Transport open attempts",
		}),

		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "stream",
			Name:      "connects_total",
			Help:      "Successful transport opens",
		}),

		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "stream",
			Name:      "failures_total",
			Help:      "Transport failures routed into the retry path",
		}),

		retryDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "stream",
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay of each scheduled retry",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),

		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Frames handed to the dispatcher",
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dispatcher",
			Name:      "events_total",
			Help:      "Dispatched events by type and outcome",
		}, []string{"type", "outcome"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dispatcher",
			Name:      "notifications_total",
			Help:      "Notifications sent to the sink by severity",
		}, []string{"severity"}),

		storeDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the store queue was full",
		}),

		storeWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "written_total",
			Help:      "Notifications written to the database",
		}),

		storeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Failed notification batch inserts",
		}),
	}
}

// SetStatus marks status as the current one.
func (m *Metrics) SetStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.status.WithLabelValues(s).Set(v)
	}
}

// ConnectAttempt counts a transport open attempt.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

// Connected counts a successful open.
func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

// Failure counts a transport failure.
func (m *Metrics) Failure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// RetryScheduled records the delay of a scheduled retry.
func (m *Metrics) RetryScheduled(d time.Duration) {
	if m == nil {
		return
	}
	m.retryDelay.Observe(d.Seconds())
}

// Frame counts a received frame.
func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

// Event counts a dispatched event. eventType must be bounded by the caller.
func (m *Metrics) Event(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// Notification counts a notification by severity.
func (m *Metrics) Notification(severity string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(severity).Inc()
}

// StoreDropped counts a notification the store could not queue.
func (m *Metrics) StoreDropped() {
	if m == nil {
		return
	}
	m.storeDropped.Inc()
}

// StoreWritten counts notifications persisted in one batch.
func (m *Metrics) StoreWritten(n int) {
	if m == nil {
		return
	}
	m.storeWritten.Add(float64(n))
}

// StoreError counts a failed batch insert.
func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}
