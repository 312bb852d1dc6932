// Package metrics счётчики Prometheus для деградации маршрутизации, конфликтов пересчёта и переходов котировок.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics nil-безопасен: методы на nil ничего не делают.
type Metrics struct {
	routingDegraded      prometheus.Counter
	routeCache           *prometheus.CounterVec
	rollupConflicts      prometheus.Counter
	rollupUnavailable    prometheus.Counter
	quotationTransitions *prometheus.CounterVec
	matchDuration        prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		routingDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventstaff",
			Subsystem: "geo",
			Name:      "routing_degraded_total",
			Help:      "Routing provider failures answered with the haversine estimate.",
		}),
		routeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventstaff",
			Subsystem: "geo",
			Name:      "route_cache_total",
			Help:      "Route cache lookups by result.",
		}, []string{"result"}),
		rollupConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventstaff",
			Subsystem: "rollup",
			Name:      "conflicts_total",
			Help:      "Read-modify-write attempts that lost a concurrent update race.",
		}),
		rollupUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventstaff",
			Subsystem: "rollup",
			Name:      "unavailable_total",
			Help:      "Mutations that gave up after exhausting retries.",
		}),
		quotationTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventstaff",
			Subsystem: "quotation",
			Name:      "transitions_total",
			Help:      "Quotation status changes by target status.",
		}, []string{"status"}),
		matchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventstaff",
			Subsystem: "matching",
			Name:      "match_duration_seconds",
			Help:      "Wall time of a Match call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.routingDegraded,
			m.routeCache,
			m.rollupConflicts,
			m.rollupUnavailable,
			m.quotationTransitions,
			m.matchDuration,
		)
	}
	return m
}

func (m *Metrics) RoutingDegraded() {
	if m == nil {
		return
	}
	m.routingDegraded.Inc()
}

// RouteCache result: hit, miss или error.
func (m *Metrics) RouteCache(result string) {
	if m == nil {
		return
	}
	m.routeCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RollupConflict() {
	if m == nil {
		return
	}
	m.rollupConflicts.Inc()
}

func (m *Metrics) RollupUnavailable() {
	if m == nil {
		return
	}
	m.rollupUnavailable.Inc()
}

func (m *Metrics) QuotationTransition(status string) {
	if m == nil {
		return
	}
	m.quotationTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveMatch(seconds float64) {
	if m == nil {
		return
	}
	m.matchDuration.Observe(seconds)
}
