package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_SetStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetStatus("reconnecting")
	m.SetStatus("connected")

	tests := []struct {
		status string
		want   float64
	}{
		{"disconnected", 0},
		{"reconnecting", 0},
		{"connected", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.status.WithLabelValues(tt.status)); got != tt.want {
			t.Errorf("status{%s} = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectAttempt()
	m.ConnectAttempt()
	m.Connected()
	m.Failure()
	m.Frame()
	m.Frame()
	m.Frame()
	m.Event("update_available", "dispatched")
	m.Event("update_available", "dispatched")
	m.Event("other", "unknown")
	m.Notification("info")
	m.StoreWritten(5)
	m.StoreDropped()
	m.StoreError()
	m.RetryScheduled(2 * time.Second)

	if got := testutil.ToFloat64(m.connectAttempts); got != 2 {
		t.Errorf("connect_attempts_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.connects); got != 1 {
		t.Errorf("connects_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failures); got != 1 {
		t.Errorf("failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.frames); got != 3 {
		t.Errorf("frames_received_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("update_available", "dispatched")); got != 2 {
		t.Errorf("events_total{update_available,dispatched} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("info")); got != 1 {
		t.Errorf("notifications_total{info} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.storeWritten); got != 5 {
		t.Errorf("store written_total = %v, want 5", got)
	}
	if got := testutil.CollectAndCount(m.retryDelay); got != 1 {
		t.Errorf("retry_delay_seconds series = %d, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	// None of these may panic
	m.SetStatus("connected")
	m.ConnectAttempt()
	m.Connected()
	m.Failure()
	m.RetryScheduled(time.Second)
	m.Frame()
	m.Event("ping", "heartbeat")
	m.Notification("error")
	m.StoreDropped()
	m.StoreWritten(1)
	m.StoreError()
}
