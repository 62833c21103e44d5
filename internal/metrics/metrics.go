// Package metrics holds the prometheus collectors exported by the skvs server.
// Collectors are registered on the default registry through promauto and are
// served on the status endpoint under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts processed protocol commands by name and response.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skvs_commands_total",
			Help: "Total number of protocol commands processed",
		},
		[]string{"command", "result"},
	)

	// CommandDuration measures time spent in the engine per command,
	// including bucket lock waits.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skvs_command_duration_seconds",
			Help:    "Duration of protocol commands in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.1, 1, 5},
		},
		[]string{"command"},
	)

	// Entries tracks the table's running entry count.
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skvs_entries",
			Help: "Number of key-value entries stored",
		},
	)

	// ConnectionsTotal counts accepted client connections.
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skvs_connections_total",
			Help: "Total number of accepted client connections",
		},
	)

	// ActiveConnections is the number of connections currently served.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skvs_connections_active",
			Help: "Number of client connections currently being served",
		},
	)

	// IOErrorsTotal counts accept, read and write failures.
	IOErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skvs_io_errors_total",
			Help: "Total number of network I/O errors",
		},
		[]string{"op"},
	)
)
