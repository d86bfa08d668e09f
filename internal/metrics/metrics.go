package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway outcome labels. Bounded set: one label value per terminal state of
// the per-request state machine.
const (
	OutcomePublic        = "public"
	OutcomeMissingBearer = "missing_bearer"
	OutcomeRejected      = "rejected"
	OutcomeRevoked       = "revoked"
	OutcomeForwarded     = "forwarded"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "requests_total",
		Help:      "Total gateway requests by terminal outcome.",
	}, []string{"outcome"})

	VerifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "authgate",
		Name:      "verify_duration_seconds",
		Help:      "Token verification latency in seconds.",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
	})

	DelegatedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "delegated_requests_total",
		Help:      "Forwarded requests where an act-as override was honored.",
	})
)

// Handler returns an http.Handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVerify records one verification duration.
func ObserveVerify(start time.Time) {
	VerifyDuration.Observe(time.Since(start).Seconds())
}
