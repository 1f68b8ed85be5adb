package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careteam_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InvitationEvents counts invitation lifecycle transitions by type and outcome
	// (created|accepted|declined|cancelled|expired).
	InvitationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careteam_invitation_events_total",
			Help: "Total number of invitation lifecycle events",
		},
		[]string{"type", "event"},
	)

	// MembershipEvents counts team membership mutations (joined|left|removed|role_changed).
	MembershipEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careteam_membership_events_total",
			Help: "Total number of team membership events",
		},
		[]string{"event"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careteam_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
