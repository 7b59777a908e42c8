package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "modelgate", Name: "auth_refresh_total", Help: "Token refresh attempts by outcome (ok, denied, error)."},
		[]string{"outcome"},
	)
	SessionTeardownTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "modelgate", Name: "session_teardown_total", Help: "Sessions cleared after an unrecoverable refresh failure."},
	)
	RequestRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "modelgate", Name: "request_retries_total", Help: "Requests re-issued after a successful token refresh."},
	)
	NetworkRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "modelgate", Name: "network_retries_total", Help: "Connection-level retries by endpoint path."},
		[]string{"path"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "modelgate", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "modelgate", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RefreshTotal)
	reg.MustRegister(SessionTeardownTotal)
	reg.MustRegister(RequestRetriesTotal)
	reg.MustRegister(NetworkRetriesTotal)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
