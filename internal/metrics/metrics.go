package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onmessage_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onmessage_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onmessage_rooms_opened_total",
			Help: "Total chat rooms opened",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onmessage_messages_sent_total",
			Help: "Total messages written to the ledger",
		},
	)

	InvitesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onmessage_invites_deleted_total",
			Help: "Total invites dismissed",
		},
	)

	OrphanedRooms = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onmessage_orphaned_rooms_total",
			Help: "Rooms whose invite write failed after the room write",
		},
	)

	// Sync engine metrics
	SyncEventsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onmessage_sync_events_applied_total",
			Help: "Live-update events merged into a room view",
		},
	)

	SyncEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onmessage_sync_events_dropped_total",
			Help: "Live-update events discarded before merge",
		},
		[]string{"reason"}, // "filtered", "duplicate", "fetch_error"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onmessage_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
