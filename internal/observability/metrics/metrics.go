package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking and report intake.
type BookingMetrics struct {
	submissions       *prometheus.CounterVec
	allocationRetries prometheus.Counter
	notifications     *prometheus.CounterVec
	attachments       *prometheus.CounterVec
	submitLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Appointment submissions by outcome",
		}, []string{"outcome"}),
		allocationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "serial_allocation_retries_total",
			Help:      "Serial allocations retried after a concurrent insert took the same serial",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Booking notification attempts by channel and result",
		}, []string{"channel", "result"}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reports",
			Name:      "attachments_total",
			Help:      "Report attachments by storage result",
		}, []string{"result"}),
		submitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "submit_latency_seconds",
			Help:      "Latency of submissions including notification dispatch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissions, m.allocationRetries, m.notifications, m.attachments, m.submitLatency)
	return m
}

// ObserveSubmission counts a booking submission. outcome is one of created,
// duplicate, invalid, unavailable or error.
func (m *BookingMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveAllocationRetry() {
	if m == nil {
		return
	}
	m.allocationRetries.Inc()
}

func (m *BookingMetrics) ObserveNotification(channel string, sent bool) {
	if m == nil {
		return
	}
	result := "failed"
	if sent {
		result = "sent"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *BookingMetrics) ObserveAttachments(stored, failed int) {
	if m == nil {
		return
	}
	if stored > 0 {
		m.attachments.WithLabelValues("stored").Add(float64(stored))
	}
	if failed > 0 {
		m.attachments.WithLabelValues("failed").Add(float64(failed))
	}
}

func (m *BookingMetrics) ObserveSubmitLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.submitLatency.WithLabelValues(kind).Observe(seconds)
}
