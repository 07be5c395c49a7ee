// Package metrics provides Prometheus metrics for StellarOps: counters,
// gauges, and histograms for the command pipeline, telemetry ingestion,
// alarms, health scoring, circuit breakers, the actor registry, and the
// WebSocket channel layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Commands ───────────────────────────────────────────────────────────────

// CommandsEnqueued tracks commands accepted into the queue by type.
var CommandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "commands_enqueued_total",
	Help:      "Total commands enqueued, by type.",
}, []string{"type"})

// CommandsCompleted tracks commands that reached the completed status.
var CommandsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "commands_completed_total",
	Help:      "Total commands completed, by type.",
}, []string{"type"})

// CommandsFailed tracks commands that reached the permanently-failed status.
var CommandsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "commands_failed_total",
	Help:      "Total commands permanently failed, by type and reason.",
}, []string{"type", "reason"})

// CommandsRetried tracks requeue-with-backoff events.
var CommandsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "commands_retried_total",
	Help:      "Total command retries scheduled, by type.",
}, []string{"type"})

// CommandsInFlight tracks commands currently non-terminal (queued through
// executing) across all satellites.
var CommandsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "commands_in_flight",
	Help:      "Number of commands currently non-terminal across all satellites.",
})

// DispatchLatency tracks time from enqueue to dispatch (pending).
var DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "stellarops",
	Name:      "command_dispatch_latency_seconds",
	Help:      "Time from command enqueue to dispatch.",
	Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
})

// TransmissionDelay tracks the simulated transmission/processing delay the
// executor sleeps for before reporting an outcome.
var TransmissionDelay = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "stellarops",
	Name:      "command_transmission_delay_seconds",
	Help:      "Simulated transmission + jitter delay applied per dispatch.",
	Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5},
})

// ─── Telemetry ──────────────────────────────────────────────────────────────

// TelemetryIngested tracks accepted telemetry events by type.
var TelemetryIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "telemetry_ingested_total",
	Help:      "Total telemetry events ingested, by event type.",
}, []string{"event_type"})

// TelemetryAnomalies tracks threshold-breach detections by metric.
var TelemetryAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "telemetry_anomalies_total",
	Help:      "Total anomalies detected during ingestion, by anomaly type.",
}, []string{"anomaly_type"})

// TelemetryCleanupDeleted tracks rows purged by the retention sweep.
var TelemetryCleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "telemetry_cleanup_deleted_total",
	Help:      "Total telemetry rows deleted by the retention sweep.",
})

// AggregatorFlushes tracks periodic hourly-rollup persists.
var AggregatorFlushes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "aggregator_flushes_total",
	Help:      "Total hourly-aggregate persist sweeps completed.",
})

// ─── Alarms ─────────────────────────────────────────────────────────────────

// AlarmsRaised tracks new alarms, by severity.
var AlarmsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "alarms_raised_total",
	Help:      "Total alarms raised, by severity.",
}, []string{"severity"})

// AlarmsDeduped tracks alarms suppressed by the bloom-filter broadcast dedup.
var AlarmsDeduped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "alarms_deduped_total",
	Help:      "Total duplicate alarm broadcasts suppressed within a dedup window.",
})

// AlarmsActive tracks currently active (non-resolved) alarms.
var AlarmsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "alarms_active",
	Help:      "Number of currently active alarms across all sources.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthSubsystemStatus tracks each satellite subsystem's health score
// (0=unknown, 1=healthy, 2=degraded, 3=warning, 4=critical).
var HealthSubsystemStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "health_subsystem_status",
	Help:      "Per-satellite, per-subsystem health score.",
}, []string{"satellite", "subsystem"})

// HealthOverallCritical tracks satellites whose overall status is critical.
var HealthOverallCritical = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "health_overall_critical",
	Help:      "Number of satellites whose overall health status is critical.",
})

// ─── Circuit Breaker ────────────────────────────────────────────────────────

// CircuitState tracks each named breaker's state (0=closed, 1=open, 2=half_open).
var CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "circuit_breaker_state",
	Help:      "Circuit breaker state per name (0=closed, 1=open, 2=half_open).",
}, []string{"name"})

// CircuitTrips tracks transitions into the open state.
var CircuitTrips = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "circuit_breaker_trips_total",
	Help:      "Total circuit breaker trips into the open state, by name.",
}, []string{"name"})

// ─── Registry ───────────────────────────────────────────────────────────────

// ActorsAlive tracks currently-supervised, non-down satellite actors.
var ActorsAlive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "actors_alive",
	Help:      "Number of satellite actors currently supervised and alive.",
})

// ActorRestarts tracks crash-triggered restarts, by satellite.
var ActorRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "actor_restarts_total",
	Help:      "Total actor restarts after a crash, by satellite.",
}, []string{"satellite"})

// ActorsMarkedDown tracks actors that exceeded the crash-rate budget.
var ActorsMarkedDown = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "actors_marked_down_total",
	Help:      "Total actors marked permanently down after exceeding the restart budget.",
})

// ─── WebSocket channel layer ────────────────────────────────────────────────

// WSSessionsActive tracks currently connected WebSocket sessions.
var WSSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stellarops",
	Name:      "ws_sessions_active",
	Help:      "Number of currently connected WebSocket sessions.",
})

// WSMessagesIn tracks inbound client events, by event name.
var WSMessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "ws_messages_in_total",
	Help:      "Total inbound WebSocket events handled, by event name.",
}, []string{"event"})

// WSMessagesOut tracks outbound pub/sub pushes, by client topic.
var WSMessagesOut = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stellarops",
	Name:      "ws_messages_out_total",
	Help:      "Total outbound pub/sub pushes delivered, by client topic.",
}, []string{"topic"})
