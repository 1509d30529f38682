package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationCycles counts completed evaluation cycles by outcome.
	EvaluationCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermostat_evaluation_cycles_total",
		Help: "Completed evaluation cycles by outcome.",
	}, []string{"outcome"})

	// DispatchFailures counts failed dispatches by error kind.
	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermostat_dispatch_failures_total",
		Help: "Failed setpoint dispatches by error kind.",
	}, []string{"kind"})

	// DispatchInFlight tracks setpoint commands currently being dispatched.
	DispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thermostat_dispatch_in_flight",
		Help: "Setpoint commands currently being dispatched.",
	})

	// CalendarFetchFailures counts calendar source fetch failures by source.
	CalendarFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermostat_calendar_fetch_failures_total",
		Help: "Calendar source fetch failures by source id.",
	}, []string{"source"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
