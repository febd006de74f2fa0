package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsAcquired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busres_holds_acquired_total",
			Help: "Total seat holds granted",
		},
	)

	HoldConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busres_hold_conflicts_total",
			Help: "Total seat hold attempts rejected because the seat was already held",
		},
	)

	SeatConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busres_seat_conflicts_total",
			Help: "Total booking attempts rejected by the ledger conflict check",
		},
	)

	BookingCodeRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busres_booking_code_retries_total",
			Help: "Total booking code collisions that forced a regeneration",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busres_webhook_events_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"result"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "busres_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busres_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
