package conversation

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the booking engine.
type Metrics struct {
	turnsTotal         *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	fallbackTotal      prometheus.Counter
	validationFailures *prometheus.CounterVec
	turnDuration       prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"state", "intent"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "bookings_total",
			Help:      "Total booking commit attempts",
		}, []string{"status"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "fallback_answers_total",
			Help:      "Total utterances delegated to the knowledge base",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "validation_failures_total",
			Help:      "Total rejected slot values",
		}, []string{"slot"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a full conversation turn",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.bookingsTotal, m.fallbackTotal, m.validationFailures, m.turnDuration)
	return m
}

func (m *Metrics) ObserveTurn(state State, intent Intent, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(string(state), intent.String()).Inc()
	m.turnDuration.Observe(seconds)
}

func (m *Metrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
}

func (m *Metrics) ObserveValidationFailure(state State) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(string(state)).Inc()
}
