// Package metrics exposes Prometheus counters for the allocation engine
// and its collaborators. A nil *Collector is a no-op, so wiring metrics is
// optional in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	mutationsApplied  prometheus.Counter
	mutationsRejected prometheus.Counter
	mutationsFailed   prometheus.Counter
	conflictRetries   prometheus.Counter

	approvalsSubmitted *prometheus.CounterVec
	approvalsResolved  *prometheus.CounterVec

	driftFlags prometheus.Counter

	httpRequests *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		mutationsApplied: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_mutations_applied_total",
			Help: "Mutations committed by the allocation engine",
		}),
		mutationsRejected: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_mutations_rejected_total",
			Help: "Mutations rejected by a precondition check",
		}),
		mutationsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_mutations_failed_total",
			Help: "Mutations that failed for a non-domain reason",
		}),
		conflictRetries: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Internal retries after a write-write conflict",
		}),
		approvalsSubmitted: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_submitted_total",
			Help: "Approval requests submitted, by action",
		}, []string{"action"}),
		approvalsResolved: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_resolved_total",
			Help: "Approval requests resolved, by outcome",
		}, []string{"outcome"}),
		driftFlags: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "drift_goals_flagged_total",
			Help: "Goals flagged as off-track by a drift scan",
		}),
		httpRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route and status",
		}, []string{"route", "status"}),
	}
}

func (c *Collector) MutationApplied() {
	if c == nil {
		return
	}
	c.mutationsApplied.Inc()
}

func (c *Collector) MutationRejected() {
	if c == nil {
		return
	}
	c.mutationsRejected.Inc()
}

func (c *Collector) MutationFailed() {
	if c == nil {
		return
	}
	c.mutationsFailed.Inc()
}

func (c *Collector) ConflictRetried() {
	if c == nil {
		return
	}
	c.conflictRetries.Inc()
}

func (c *Collector) ApprovalSubmitted(action string) {
	if c == nil {
		return
	}
	c.approvalsSubmitted.WithLabelValues(action).Inc()
}

func (c *Collector) ApprovalResolved(outcome string) {
	if c == nil {
		return
	}
	c.approvalsResolved.WithLabelValues(outcome).Inc()
}

func (c *Collector) GoalFlagged() {
	if c == nil {
		return
	}
	c.driftFlags.Inc()
}

func (c *Collector) HTTPRequest(route, status string) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, status).Inc()
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
