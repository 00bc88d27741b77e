package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and availability flows.
type SchedulingMetrics struct {
	writesTotal     *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	slotQueries     prometheus.Counter
	httpLatency     *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "writes_total",
			Help:      "Calendar writes by operation and outcome",
		}, []string{"operation", "result"}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "validation_failures_total",
			Help:      "Rejected date-times by violation",
		}, []string{"violation"}),
		slotQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "slot_queries_total",
			Help:      "Slot listings computed",
		}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.writesTotal, m.violationsTotal, m.slotQueries, m.httpLatency)
	return m
}

func (m *SchedulingMetrics) ObserveWrite(operation, result string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(operation, result).Inc()
}

func (m *SchedulingMetrics) ObserveViolation(violation string) {
	if m == nil {
		return
	}
	m.violationsTotal.WithLabelValues(violation).Inc()
}

func (m *SchedulingMetrics) ObserveSlotQuery() {
	if m == nil {
		return
	}
	m.slotQueries.Inc()
}

func (m *SchedulingMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(seconds)
}
