package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ChatConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workspacechat_connections",
			Help: "Live websocket connections",
		},
		[]string{"scope"},
	)

	ChatRooms = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workspacechat_rooms",
			Help: "Rooms with at least one live connection",
		},
		[]string{"scope"},
	)

	// Message metrics
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspacechat_messages_ingested_total",
			Help: "Messages persisted by the ingest pipeline",
		},
		[]string{"scope", "type"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspacechat_messages_dropped_total",
			Help: "Inbound messages that were not persisted",
		},
		[]string{"scope", "reason"},
	)

	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspacechat_evictions_total",
			Help: "Connections evicted after a failed send",
		},
		[]string{"scope"},
	)

	BroadcastDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workspacechat_broadcast_duration_seconds",
			Help:    "Time spent fanning one message out to a room",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5, 1},
		},
		[]string{"scope"},
	)
)
