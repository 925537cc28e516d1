package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	appStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appvisor",
			Subsystem: "app",
			Name:      "starts_total",
			Help:      "Number of successful application starts.",
		}, []string{"name"},
	)
	appStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appvisor",
			Subsystem: "app",
			Name:      "stops_total",
			Help:      "Number of confirmed application stops.",
		}, []string{"name"},
	)
	appCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appvisor",
			Subsystem: "app",
			Name:      "crashes_total",
			Help:      "Number of unexpected exits or lost ports detected.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appvisor",
			Subsystem: "app",
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle state transitions.",
		}, []string{"name", "from", "to"},
	)
	runningApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "appvisor",
			Subsystem: "app",
			Name:      "running",
			Help:      "Current number of applications in the running state.",
		},
	)
	livenessConfirm = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appvisor",
			Subsystem: "app",
			Name:      "liveness_confirm_seconds",
			Help:      "Time from spawn until the application's port accepted a connection.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		appStarts, appStops, appCrashes, stateTransitions, runningApps, livenessConfirm,
	}
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

// RegisterDefault registers against the default Prometheus registerer.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler exposes the default registry for scraping.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string) { appStarts.WithLabelValues(name).Inc() }
func IncStop(name string)  { appStops.WithLabelValues(name).Inc() }
func IncCrash(name string) { appCrashes.WithLabelValues(name).Inc() }
func IncRunning()          { runningApps.Inc() }
func DecRunning()          { runningApps.Dec() }
func SetRunning(n int)     { runningApps.Set(float64(n)) }

func ObserveLivenessConfirm(name string, seconds float64) {
	livenessConfirm.WithLabelValues(name).Observe(seconds)
}

// IncTransition records one state-machine edge for an application.
func IncTransition(name, from, to string) {
	stateTransitions.WithLabelValues(name, from, to).Inc()
}
