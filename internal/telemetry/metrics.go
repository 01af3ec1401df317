// Package telemetry exposes Prometheus metrics for the aggregation and
// broadcast paths.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BroadcastEnqueueSeconds tracks how long fan-out to all room members
	// takes, from emission to the last outbound buffer enqueue. The
	// delivery SLO is 5s end-to-end; enqueue latency is the part the
	// server controls.
	BroadcastEnqueueSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pulseboard",
		Subsystem: "realtime",
		Name:      "broadcast_enqueue_seconds",
		Help:      "Time to enqueue a broadcast to all members of a room.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"event"})

	// DroppedEvents counts events dropped because a client's outbound
	// buffer was full.
	DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "realtime",
		Name:      "dropped_events_total",
		Help:      "Events dropped due to a full client send buffer.",
	}, []string{"event"})

	// ConnectedClients tracks currently connected WebSocket clients.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulseboard",
		Subsystem: "realtime",
		Name:      "connected_clients",
		Help:      "Currently connected WebSocket clients.",
	})

	// RoomMembers tracks membership per room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulseboard",
		Subsystem: "realtime",
		Name:      "room_members",
		Help:      "Current members per room.",
	}, []string{"room"})

	// CacheHits counts rollup cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Rollup cache hits.",
	})

	// CacheMisses counts rollup cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Rollup cache misses.",
	})
)
