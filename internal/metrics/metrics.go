// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"openob.io/openob/internal/core"
)

var (
	// StoreConnectAttemptsTotal counts configuration store dial attempts by result
	StoreConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openob_store_connect_attempts_total",
			Help: "Total number of configuration store connection attempts",
		},
		[]string{"role", "result"},
	)

	// RoundsTotal counts finished negotiation rounds by how they ended
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openob_rounds_total",
			Help: "Total number of negotiation rounds by outcome",
		},
		[]string{"role", "outcome"},
	)

	// NegotiationRetriesTotal counts sink polls that found no usable link record
	NegotiationRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openob_negotiation_retries_total",
			Help: "Total number of negotiation retries by reason",
		},
		[]string{"reason"},
	)

	// EngineFailuresTotal counts transport engine start and run failures
	EngineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openob_engine_failures_total",
			Help: "Total number of transport engine failures",
		},
		[]string{"role"},
	)

	// LinkPhase is 1 for the current phase of the link and 0 for the others
	LinkPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openob_link_phase",
			Help: "Current phase of the link manager (1=current)",
		},
		[]string{"role", "phase"},
	)
)

// SetPhase marks phase as the current one for role.
func SetPhase(role core.Role, phase core.Phase) {
	for _, p := range core.Phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		LinkPhase.WithLabelValues(string(role), string(p)).Set(v)
	}
}
