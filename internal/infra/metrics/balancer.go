package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(accountReservations, accountPenalties) }

var (
	accountReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pooled_account_reservations_total",
			Help: "Account reservation attempts per provider and outcome.",
		},
		[]string{"provider", "outcome"}, // 'ok', 'exhausted'
	)

	accountPenalties = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pooled_account_penalties_total",
			Help: "Accounts moved out of rotation per provider and new status.",
		},
		[]string{"provider", "status"},
	)
)

func IncAccountReserve(provider, outcome string) {
	accountReservations.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncAccountPenalty(provider, status string) {
	accountPenalties.WithLabelValues(norm(provider), norm(status)).Inc()
}
