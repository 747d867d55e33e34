// Package metrics exposes Prometheus counters for session verification and
// identity provider calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification outcomes
const (
	OutcomeActive            = "active"
	OutcomeRefreshed         = "refreshed"
	OutcomeUnauthenticated   = "unauthenticated"
	OutcomePrincipalNotFound = "principal_not_found"
	OutcomeError             = "error"
)

// Recorder owns a private registry so tests can create as many as they like.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	verifications *prometheus.CounterVec
	idpCalls      *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "session_broker",
			Name:      "verifications_total",
			Help:      "Session verifications by outcome.",
		}, []string{"outcome"}),
		idpCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "session_broker",
			Name:      "idp_calls_total",
			Help:      "Identity provider calls by operation and result.",
		}, []string{"operation", "result"}),
	}
	r.registry.MustRegister(r.verifications, r.idpCalls)
	return r
}

// Verification counts one pass through the session gate
func (r *Recorder) Verification(outcome string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(outcome).Inc()
}

// IdPCall counts one call to the identity provider
func (r *Recorder) IdPCall(operation string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.idpCalls.WithLabelValues(operation, result).Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// VerificationCounter returns the counter for one outcome
func (r *Recorder) VerificationCounter(outcome string) prometheus.Counter {
	return r.verifications.WithLabelValues(outcome)
}
