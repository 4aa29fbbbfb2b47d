package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordsPerInstance(t *testing.T) {
	m := NewMetrics()
	other := NewMetrics()

	m.RecordRequest("/api/tickets/:id", "GET", 200, 15*time.Millisecond)
	m.RecordRequest("/api/tickets/:id", "GET", 200, 5*time.Millisecond)
	m.RecordError("/api/tickets/:id", "GET", "NOT_FOUND")
	m.RecordEvent("ticket_created")
	m.RecordTransition("Open", "In-Progress")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/tickets/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/tickets/:id", "GET", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("ticket_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("Open", "In-Progress")))
	assert.Equal(t, 0.0, testutil.ToFloat64(other.events.WithLabelValues("ticket_created")))

	count, err := testutil.GatherAndCount(m.Registry(), "issue_tracker_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordEvent("x")
		m.RecordTransition("a", "b")
	})
}
