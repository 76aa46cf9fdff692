// Package metrics holds the Prometheus collectors shared by the worker and the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PortalRequestsTotal counts portal HTTP requests by page and outcome.
	PortalRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_portal_requests_total",
		Help: "Portal HTTP requests by page and outcome",
	}, []string{"page", "outcome"})

	// PortalRequestDuration observes portal request latency.
	PortalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "absen_portal_request_duration_seconds",
		Help:    "Portal request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"page"})

	// LoginsTotal counts whole login operations by result.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_portal_logins_total",
		Help: "Portal logins by result (success, failed, timeout)",
	}, []string{"result"})

	// LoginAttemptsTotal counts individual login FSM attempts by the phase they ended in.
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_portal_login_attempts_total",
		Help: "Login attempts by terminal phase",
	}, []string{"phase"})

	// SweepsTotal counts scheduler ticks by result (completed, skipped, aborted).
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_sweeps_total",
		Help: "Scheduler sweeps by result",
	}, []string{"result"})

	// SweepDuration observes how long one sweep takes.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "absen_sweep_duration_seconds",
		Help:    "Sweep duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// AccountsProcessedTotal counts per-account sweep results.
	AccountsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_accounts_processed_total",
		Help: "Accounts processed by result",
	}, []string{"result"})

	// NewContentTotal counts newly detected content items.
	NewContentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "absen_new_content_total",
		Help: "Newly detected content items",
	})

	// CheckInsTotal counts check-in outcomes.
	CheckInsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_checkins_total",
		Help: "Check-in outcomes (confirmed, unverified, failed, skipped)",
	}, []string{"outcome"})

	// NotificationsTotal counts notification deliveries.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "absen_notifications_total",
		Help: "Notifications by kind and result",
	}, []string{"kind", "result"})
)
