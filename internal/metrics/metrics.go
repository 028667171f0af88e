// Package metrics defines the Prometheus collectors exported by farm-health.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmhealth",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "farmhealth",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})

	// Analysis metrics
	analysisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmhealth",
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Analysis requests sent to the remote service, by outcome",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "farmhealth",
		Subsystem: "analysis",
		Name:      "request_duration_seconds",
		Help:      "Latency of analysis requests",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"outcome"})

	AnalysisInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "farmhealth",
		Subsystem: "analysis",
		Name:      "in_flight",
		Help:      "Analysis requests currently awaiting a response",
	})

	// Session metrics
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmhealth",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions, by target state",
	}, []string{"state"})

	StaleResultsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "farmhealth",
		Subsystem: "session",
		Name:      "stale_results_discarded_total",
		Help:      "Analysis outcomes dropped because the boundary or crop changed while in flight",
	})
)

// ObserveAnalysis records one resolved analysis request.
func ObserveAnalysis(outcome string, d time.Duration) {
	analysisRequestsTotal.WithLabelValues(outcome).Inc()
	analysisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
