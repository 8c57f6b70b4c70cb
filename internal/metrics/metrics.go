// Package metrics defines the Prometheus collectors for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry metrics
var (
	// RegistryActiveAccounts tracks the number of accounts with at least one entry
	RegistryActiveAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_active_accounts",
			Help: "Number of accounts with at least one registered entry",
		},
	)

	// RegistryConnectedClients tracks the number of live websocket connections across all accounts
	RegistryConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_connected_clients_total",
			Help: "Total number of live websocket connections across all accounts",
		},
	)

	// RegistryReservedSlots tracks bookkeeping-only placeholder entries
	RegistryReservedSlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_reserved_slots",
			Help: "Number of reserved placeholder entries created via /set",
		},
	)

	// RegistryCommandChannelDepth tracks the registry actor's command backlog
	RegistryCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_command_channel_depth",
			Help: "Current depth of the registry actor command channel",
		},
	)
)

// Dispatch metrics
var (
	// NotificationsDispatchedTotal counts fan-out requests accepted for delivery
	NotificationsDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total fan-out requests that found at least one registry entry",
		},
	)

	// NotificationsDeliveredTotal counts frames handed to a connection writer
	NotificationsDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total notification frames enqueued to client connections",
		},
	)

	// NotificationsFilteredTotal counts connections skipped during fan-out by reason
	NotificationsFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_filtered_total",
			Help: "Connections skipped during fan-out by reason (origin, closed, reserved)",
		},
		[]string{"reason"},
	)

	// NotificationsNoSubscribersTotal counts fan-out requests that found nothing
	NotificationsNoSubscribersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_no_subscribers_total",
			Help: "Total fan-out requests rejected because the account had no entries",
		},
	)
)

// Liveness metrics
var (
	// MonitorSweepsTotal counts completed liveness sweeps
	MonitorSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_sweeps_total",
			Help: "Total completed liveness sweeps",
		},
	)

	// MonitorEvictionsTotal counts connections evicted for missing a probe
	MonitorEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_evictions_total",
			Help: "Total connections evicted after an unanswered liveness probe",
		},
	)

	// MonitorProbeFailures counts ping writes that failed outright
	MonitorProbeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_probe_failures_total",
			Help: "Total liveness probes that could not be written to the transport",
		},
	)
)

// Connection metrics
var (
	// SlowClientsEvicted counts connections dropped because their send buffer was full
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slow_clients_evicted_total",
			Help: "Total websocket clients evicted due to a full send buffer",
		},
	)

	// AuthRejectionsTotal counts failed API key verifications
	AuthRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Total rejected API key verifications",
		},
	)

	// KeepalivePingsTotal counts outbound warm-up pings by status
	KeepalivePingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_pings_total",
			Help: "Total outbound keepalive pings by status",
		},
		[]string{"status"},
	)
)
