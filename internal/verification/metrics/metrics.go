package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsFinished *prometheus.CounterVec
	PollsTotal       *prometheus.CounterVec
	EventsIgnored    *prometheus.CounterVec
	DecisionScore    prometheus.Histogram
	WebhooksTotal    *prometheus.CounterVec
}

// New registers on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "medcred_verification_sessions_started_total",
			Help: "Verification sessions created at the provider",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "medcred_verification_sessions_active",
			Help: "Sessions currently tracked with a running poll loop",
		}),
		SessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcred_verification_sessions_finished_total",
			Help: "Sessions reaching a terminal state",
		}, []string{"state"}),
		PollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcred_verification_polls_total",
			Help: "Decision polls by result",
		}, []string{"result"}),
		EventsIgnored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcred_verification_events_ignored_total",
			Help: "Status events dropped because the session was terminal or unknown",
		}, []string{"source"}),
		DecisionScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcred_verification_decision_score",
			Help:    "Aggregated score of completed sessions",
			Buckets: []float64{0, 25, 50, 75, 100},
		}),
		WebhooksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcred_verification_webhooks_total",
			Help: "Webhook deliveries by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionFinished(state string) {
	m.SessionsActive.Dec()
	m.SessionsFinished.WithLabelValues(state).Inc()
}

func (m *Metrics) IncPoll(result string) {
	m.PollsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncIgnored(source string) {
	m.EventsIgnored.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveScore(score int) {
	m.DecisionScore.Observe(float64(score))
}

func (m *Metrics) IncWebhook(outcome string) {
	m.WebhooksTotal.WithLabelValues(outcome).Inc()
}
