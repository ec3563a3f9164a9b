package metrics

import "github.com/prometheus/client_golang/prometheus"

// WizardMetrics exposes counters/histograms for booking-wizard flows.
type WizardMetrics struct {
	sessionsTotal    *prometheus.CounterVec
	slotQueriesTotal *prometheus.CounterVec
	confirmsTotal    *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
}

func NewWizardMetrics(reg prometheus.Registerer) *WizardMetrics {
	m := &WizardMetrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flotteq",
			Subsystem: "wizard",
			Name:      "sessions_total",
			Help:      "Wizard sessions by outcome (opened, confirmed, cancelled, expired)",
		}, []string{"outcome"}),
		slotQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flotteq",
			Subsystem: "wizard",
			Name:      "slot_queries_total",
			Help:      "Availability queries by result (ok, empty, error, stale)",
		}, []string{"result"}),
		confirmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flotteq",
			Subsystem: "wizard",
			Name:      "confirms_total",
			Help:      "Booking confirmations by result (ok, rejected, error)",
		}, []string{"result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flotteq",
			Subsystem: "wizard",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of core API calls made on behalf of the wizard",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsTotal, m.slotQueriesTotal, m.confirmsTotal, m.upstreamLatency)
	return m
}

func (m *WizardMetrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(outcome).Inc()
}

func (m *WizardMetrics) ObserveSlotQuery(result string) {
	if m == nil {
		return
	}
	m.slotQueriesTotal.WithLabelValues(result).Inc()
}

func (m *WizardMetrics) ObserveConfirm(result string) {
	if m == nil {
		return
	}
	m.confirmsTotal.WithLabelValues(result).Inc()
}

func (m *WizardMetrics) ObserveUpstreamLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(operation).Observe(seconds)
}
