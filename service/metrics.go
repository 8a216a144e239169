package service

import "github.com/prometheus/client_golang/prometheus"

var (
	pointsMovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbit_points_moved_total",
			Help: "Points moved through the ledger by transaction kind",
		},
		[]string{"kind"},
	)

	allocationItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbit_allocation_items_total",
			Help: "Allocation recipients processed by outcome",
		},
		[]string{"outcome"},
	)

	claimedGrantsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbit_pending_grants_claimed_total",
			Help: "Pending point grants claimed by newly registered accounts",
		},
	)
)

func init() {
	prometheus.MustRegister(pointsMovedTotal)
	prometheus.MustRegister(allocationItemsTotal)
	prometheus.MustRegister(claimedGrantsTotal)
}
