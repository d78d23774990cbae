package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for reconciliation, revocation,
// route guarding and audit failures. A nil *Metrics is a no-op.
type Metrics struct {
	reconcile        *prometheus.CounterVec
	revocations      *prometheus.CounterVec
	guardRedirects   *prometheus.CounterVec
	activityFailures *prometheus.CounterVec
}

// NewMetrics registers the collectors against registerer. When registerer
// is nil a private registry is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	m := &Metrics{
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growth_auth",
			Name:      "reconcile_total",
			Help:      "Reconciliations by outcome.",
		}, []string{"outcome"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growth_auth",
			Name:      "revocations_total",
			Help:      "Session revocations by outcome, including failures hidden from callers.",
		}, []string{"outcome"}),
		guardRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growth_auth",
			Name:      "guard_redirects_total",
			Help:      "Redirects issued by the route guard and access checks.",
		}, []string{"reason"}),
		activityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growth_auth",
			Name:      "activity_failures_total",
			Help:      "Activity log appends that failed.",
		}, []string{"category"}),
	}

	registerer.MustRegister(m.reconcile, m.revocations, m.guardRedirects, m.activityFailures)
	return m
}

// ObserveReconcile counts a reconciliation outcome.
func (m *Metrics) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcile.WithLabelValues(outcome).Inc()
}

// ObserveRevocation counts a revocation outcome.
func (m *Metrics) ObserveRevocation(outcome RevocationOutcome) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(string(outcome)).Inc()
}

// ObserveGuardRedirect counts a redirect.
func (m *Metrics) ObserveGuardRedirect(reason string) {
	if m == nil {
		return
	}
	m.guardRedirects.WithLabelValues(reason).Inc()
}

// ObserveActivityFailure counts a failed append.
func (m *Metrics) ObserveActivityFailure(category ActivityCategory) {
	if m == nil {
		return
	}
	m.activityFailures.WithLabelValues(string(category)).Inc()
}
