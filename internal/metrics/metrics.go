// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReceivedBytesTotal counts payload bytes added to a sink's total
	ReceivedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxsink_received_bytes_total",
			Help: "Total number of payload bytes counted by the sink",
		},
		[]string{"sink", "protocol"},
	)

	// ReceivedPacketsTotal counts non-empty payloads delivered to a sink
	ReceivedPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxsink_received_packets_total",
			Help: "Total number of payloads delivered to the sink",
		},
		[]string{"sink", "protocol"},
	)

	// FilteredPacketsTotal counts payloads rejected by the sink filter
	FilteredPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxsink_filtered_packets_total",
			Help: "Total number of payloads rejected by the sink filter",
		},
		[]string{"sink"},
	)

	// ThroughputBitsPerSecond is the last windowed throughput sample
	ThroughputBitsPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rxsink_throughput_bits_per_second",
			Help: "Moving average throughput over the sampling window in bits per second",
		},
		[]string{"sink"},
	)

	// ActiveSessions tracks accepted connections held by a sink
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rxsink_active_sessions",
			Help: "Number of accepted connections held by the sink",
		},
		[]string{"sink"},
	)

	// PeerEventsTotal counts peer close and error notifications
	PeerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxsink_peer_events_total",
			Help: "Total number of peer close and error notifications",
		},
		[]string{"sink", "event"},
	)

	// SinkState tracks the lifecycle state of each sink
	SinkState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rxsink_sink_state",
			Help: "Current sink state (0=idle, 1=listening, 2=stopped)",
		},
		[]string{"sink"},
	)

	// TraceDroppedTotal counts trace events an exporter could not queue
	TraceDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxsink_trace_dropped_total",
			Help: "Total number of trace events dropped by exporters",
		},
		[]string{"exporter"},
	)

	// TraceErrorsTotal counts exporter delivery failures
	TraceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxsink_trace_errors_total",
			Help: "Total number of trace export errors",
		},
		[]string{"exporter"},
	)
)

// SinkState values
const (
	SinkStateIdle      = 0
	SinkStateListening = 1
	SinkStateStopped   = 2
)

// Peer event label values
const (
	PeerEventClose = "close"
	PeerEventError = "error"
)
