package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ensure outcomes.
const (
	OutcomeLaunch = "launch"
	OutcomeReuse  = "reuse"
	OutcomeFailed = "failed"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ensures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xprocess",
			Subsystem: "controller",
			Name:      "ensure_total",
			Help:      "Number of ensure calls by outcome (launch, reuse, failed).",
		}, []string{"name", "outcome"},
	)
	startupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xprocess",
			Subsystem: "controller",
			Name:      "startup_duration_seconds",
			Help:      "Time from spawn until readiness was detected.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xprocess",
			Subsystem: "process",
			Name:      "terminations_total",
			Help:      "Number of terminate calls by result.",
		}, []string{"name", "result"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "xprocess",
			Subsystem: "process",
			Name:      "running",
			Help:      "1 if the process registered under name was live at the last listing.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{ensures, startupDuration, terminations, running}
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has been called.

func IncEnsure(name, outcome string) {
	if regOK.Load() {
		ensures.WithLabelValues(name, outcome).Inc()
	}
}

func ObserveStartup(name string, seconds float64) {
	if regOK.Load() {
		startupDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncTermination(name, result string) {
	if regOK.Load() {
		terminations.WithLabelValues(name, result).Inc()
	}
}

func SetRunning(name string, live bool) {
	if regOK.Load() {
		v := 0.0
		if live {
			v = 1
		}
		running.WithLabelValues(name).Set(v)
	}
}
