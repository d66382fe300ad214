package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MatchesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_matches_created_total",
			Help: "Matches opened by CreateMatch",
		},
	)
	MatchesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_matches_started_total",
			Help: "Matches that entered play, by origin (join or rematch)",
		},
		[]string{"origin"},
	)
	MatchesSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_matches_settled_total",
			Help: "Settlements applied, by result and reason",
		},
		[]string{"result", "reason"},
	)
	MatchesCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_matches_cancelled_total",
			Help: "Waiting matches removed, by reason",
		},
		[]string{"reason"},
	)
	AutoMoves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_auto_moves_total",
			Help: "Moves assigned on a player's behalf after a timeout",
		},
	)
	SettleRaceLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_settle_race_lost_total",
			Help: "Settlement attempts that found the match already finished",
		},
	)
	TxConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_tx_conflicts_total",
			Help: "Units of work retried after a concurrent modification",
		},
	)
	Rematches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_rematches_total",
			Help: "Rematch negotiations by outcome",
		},
		[]string{"outcome"},
	)
	SweepActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_sweep_actions_total",
			Help: "Matches touched by the idle sweep, by action",
		},
		[]string{"action"},
	)
	ArmedTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rps_armed_timers",
			Help: "Move timeout timers currently pending",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MatchesCreated,
		MatchesStarted,
		MatchesSettled,
		MatchesCancelled,
		AutoMoves,
		SettleRaceLost,
		TxConflicts,
		Rematches,
		SweepActions,
		ArmedTimers,
	)
}
