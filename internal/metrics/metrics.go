package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors for the single supervised target.
// They are registered via Register. No exporter endpoint is provided here;
// the embedding shell decides whether and where to expose a registry.
var (
	regOK atomic.Bool

	spawns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "spawns_total",
			Help:      "Number of successful child spawns.",
		},
	)
	crashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "crashes_total",
			Help:      "Number of observed child crashes.",
		},
	)
	restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of automatic restart attempts scheduled.",
		},
	)
	backoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "backoff_seconds",
			Help:      "Delay before the next scheduled restart attempt.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between supervisor states.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{spawns, crashes, restarts, backoffSeconds, stateTransitions, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

func IncSpawn()                { spawns.Inc() }
func IncCrash()                { crashes.Inc() }
func IncRestart()              { restarts.Inc() }
func SetBackoff(secs float64)  { backoffSeconds.Set(secs) }
func RecordStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
	currentState.WithLabelValues(from).Set(0)
	currentState.WithLabelValues(to).Set(1)
}
