package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the session and gate core.
type Metrics struct {
	Logins            *prometheus.CounterVec
	Logouts           prometheus.Counter
	EntryDecisions    *prometheus.CounterVec
	DoctorLookups     prometheus.Counter
	VerificationHits  prometheus.Counter
	FailOpenDecisions prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medigate_logins_total",
			Help: "Login attempts by outcome (success, invalid_credentials, network_error, server_error).",
		}, []string{"outcome"}),
		Logouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medigate_logouts_total",
			Help: "Completed logouts.",
		}),
		EntryDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medigate_entry_decisions_total",
			Help: "Entry decisions published by section.",
		}, []string{"section"}),
		DoctorLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medigate_doctor_lookups_total",
			Help: "External doctor-directory lookups issued (post-dedup).",
		}),
		VerificationHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medigate_verification_cache_hits_total",
			Help: "Doctor verification results served from the session cache.",
		}),
		FailOpenDecisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medigate_verification_fail_open_total",
			Help: "Times a resolver error was treated as verified under the fail-open policy.",
		}),
	}
}
