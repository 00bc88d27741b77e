package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveWrite("book", "ok")
	m.ObserveWrite("book", "ok")
	m.ObserveWrite("book", "conflict")
	m.ObserveViolation("within_break")
	m.ObserveSlotQuery()
	m.ObserveRequest("GET", "/schedule/slots", "200", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.writesTotal.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writesTotal.WithLabelValues("book", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violationsTotal.WithLabelValues("within_break")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotQueries))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpLatency))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *SchedulingMetrics
	assert.NotPanics(t, func() {
		m.ObserveWrite("book", "ok")
		m.ObserveViolation("slot_conflict")
		m.ObserveSlotQuery()
		m.ObserveRequest("GET", "/", "200", 1)
	})
}
