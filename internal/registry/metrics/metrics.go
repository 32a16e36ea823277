package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LookupsTotal   *prometheus.CounterVec
	LookupDuration prometheus.Histogram
	RetriesTotal   prometheus.Counter
	BreakerOpen    prometheus.Gauge
	PoolWait       prometheus.Histogram
	PoolInUse      prometheus.Gauge
	TabsReplaced   prometheus.Counter
}

// New registers on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcred_registry_lookups_total",
			Help: "Registry lookups by verification source",
		}, []string{"source"}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcred_registry_lookup_duration_seconds",
			Help:    "End-to-end registry lookup latency including retries",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}),
		RetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "medcred_registry_retries_total",
			Help: "Registry search attempts retried after a transient failure",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "medcred_registry_circuit_open",
			Help: "1 while the registry circuit breaker is open",
		}),
		PoolWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcred_registry_pool_wait_seconds",
			Help:    "Time spent waiting for a free browser tab",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
		}),
		PoolInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "medcred_registry_pool_tabs_in_use",
			Help: "Browser tabs currently checked out",
		}),
		TabsReplaced: f.NewCounter(prometheus.CounterOpts{
			Name: "medcred_registry_pool_tabs_replaced_total",
			Help: "Broken browser tabs replaced",
		}),
	}
}

func (m *Metrics) IncLookup(source string) {
	m.LookupsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveLookupDuration(d time.Duration) {
	m.LookupDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRetry() {
	m.RetriesTotal.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) ObservePoolWait(d time.Duration) {
	m.PoolWait.Observe(d.Seconds())
}

func (m *Metrics) TabAcquired() { m.PoolInUse.Inc() }
func (m *Metrics) TabReleased() { m.PoolInUse.Dec() }
func (m *Metrics) TabReplaced() { m.TabsReplaced.Inc() }
