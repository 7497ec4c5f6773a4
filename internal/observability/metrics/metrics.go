package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for availability, booking and
// waitlist flows.
type SchedulingMetrics struct {
	availabilityTotal *prometheus.CounterVec
	slotsReturned     prometheus.Histogram
	bookingTotal      *prometheus.CounterVec
	bookingLatency    *prometheus.HistogramVec
	txRetries         prometheus.Counter
	hoursFallback     *prometheus.CounterVec
	waitlistTotal     *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "requests_total",
			Help:      "Availability checks by outcome",
		}, []string{"outcome"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Number of slots returned per availability check",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "appointments",
			Name:      "operations_total",
			Help:      "Appointment operations by outcome",
		}, []string{"operation", "outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "appointments",
			Name:      "operation_latency_seconds",
			Help:      "Latency of appointment operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "appointments",
			Name:      "tx_retries_total",
			Help:      "Booking transactions retried after serialization failures",
		}),
		hoursFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "config",
			Name:      "hours_fallback_total",
			Help:      "Days resolved without configured business hours",
		}, []string{"weekday"}),
		waitlistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "waitlist",
			Name:      "transitions_total",
			Help:      "Waitlist entry transitions",
		}, []string{"transition"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.slotsReturned, m.bookingTotal, m.bookingLatency,
		m.txRetries, m.hoursFallback, m.waitlistTotal)
	return m
}

func (m *SchedulingMetrics) ObserveAvailability(outcome string, slots int) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(outcome).Inc()
	m.slotsReturned.Observe(float64(slots))
}

func (m *SchedulingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(operation, outcome).Inc()
	m.bookingLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

func (m *SchedulingMetrics) ObserveHoursFallback(weekday string) {
	if m == nil {
		return
	}
	m.hoursFallback.WithLabelValues(weekday).Inc()
}

func (m *SchedulingMetrics) ObserveWaitlist(transition string) {
	if m == nil {
		return
	}
	m.waitlistTotal.WithLabelValues(transition).Inc()
}
