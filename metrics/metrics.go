package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Total messages posted, by default room id or \"custom\" for created rooms",
		},
		[]string{"room"},
	)

	RoomJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_room_joins_total",
			Help: "Total room joins",
		},
	)

	RoomLeaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_room_leaves_total",
			Help: "Total room leaves",
		},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Total rooms created at runtime",
		},
	)

	// Connection metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connected_clients",
			Help: "Currently registered websocket connections",
		},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_protocol_errors_total",
			Help: "Error events sent to clients",
		},
		[]string{"code"},
	)

	RateLimitedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limited_frames_total",
			Help: "Inbound frames rejected by the per-connection rate limiter",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_dropped_frames_total",
			Help: "Outbound frames dropped because a client queue was full",
		},
	)
)
