package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Session protocol operations by outcome.",
	}, []string{"op", "result"})
	securityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_security_events_total",
		Help: "Security events emitted, by kind.",
	}, []string{"kind"})
	rotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_rotations_total",
		Help: "Successful refresh token rotations.",
	})
	cacheFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_cache_fallbacks_total",
		Help: "Cache operations that failed and fell back to the ledger or were skipped.",
	}, []string{"op"})
	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	}, []string{"method"})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
}
