package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define the boundaries between subsystems. Design note
// (spec.md §9): circular subsystem references are broken by owning
// subsystems behind small interfaces and wiring concrete implementations at
// startup — never by ad-hoc global lookup inside handlers.

// SatelliteState is the live, actor-owned projection of a Satellite plus the
// liveness bit the registry tracks.
type SatelliteState struct {
	Satellite
	Alive bool `json:"alive"`
}

// ActorHandle is the interface a satellite actor exposes to the rest of the
// system (command executor, telemetry ingester). It never blocks longer than
// its caller's context allows; every mutation is serialized through the
// actor's own inbox (spec.md §4.3).
type ActorHandle interface {
	ID() string
	GetState(ctx context.Context) (SatelliteState, error)
	UpdateEnergy(ctx context.Context, delta float64) (SatelliteState, error)
	UpdateMemory(ctx context.Context, value float64) (SatelliteState, error)
	UpdatePosition(ctx context.Context, pos Position) (SatelliteState, error)
	SetMode(ctx context.Context, mode Mode) (SatelliteState, error)
	Stop()
}

// Registry starts, stops, and looks up satellite actors by id (spec.md §4.6).
type Registry interface {
	Start(ctx context.Context, sat Satellite) (ActorHandle, error)
	Stop(ctx context.Context, id string) error
	Lookup(id string) (ActorHandle, bool)
	ListIDs() []string
	Count() int
	Alive(id string) bool
}

// CommandSink is the interface the command executor uses to report dispatch
// outcomes back to the command queue (spec.md §4.4, §4.5), without depending
// on the queue's internal dispatcher or durable-store wiring.
type CommandSink interface {
	Acknowledge(id string)
	StartExecution(id string)
	Complete(id string, result map[string]any)
	Fail(id string, errMsg string)
}

// AggregatorReader exposes just the read side of the telemetry aggregator,
// for the health monitor to consume trends without importing its writer API.
type AggregatorReader interface {
	GetStats(satelliteID, metric string) map[StatWindow]WindowStats
	GetTrend(satelliteID, metric string) Trend
}

// AlarmRaiser is implemented by whatever subsystem owns alarm persistence and
// broadcast, consumed by the telemetry ingester and health monitor.
type AlarmRaiser interface {
	Raise(ctx context.Context, alarm Alarm) (Alarm, error)
}

// Bus is the publish/subscribe contract of spec.md §4.1. Delivery is
// best-effort and FIFO per (topic, subscriber); a slow subscriber must not
// block others.
type Bus interface {
	Publish(topic string, msg any)
	Subscribe(topic string) Subscription
}

// Subscription is a live handle returned by Bus.Subscribe.
type Subscription interface {
	Topic() string
	C() <-chan any
	Unsubscribe()
}

// StoreError classifies a durable-store failure per spec.md §4.2.
type StoreErrorKind string

const (
	StoreNotFound   StoreErrorKind = "not_found"
	StoreConflict   StoreErrorKind = "conflict"
	StoreValidation StoreErrorKind = "validation"
	StoreTransient  StoreErrorKind = "transient"
)

// CommandFilter narrows ListCommands queries.
type CommandFilter struct {
	SatelliteID  string
	NonTerminal  bool
}

// Store is the durable store adapter of spec.md §4.2. It hides any SQL
// dialect — callers never see raw queries — and every operation is
// transactional with read-your-writes semantics within itself.
type Store interface {
	// Satellites
	UpsertSatellite(ctx context.Context, sat Satellite) error
	GetSatellite(ctx context.Context, id string) (Satellite, error)
	ListSatellites(ctx context.Context) ([]Satellite, error)

	// Commands
	InsertCommand(ctx context.Context, cmd Command) (Command, error)
	UpdateCommandStatus(ctx context.Context, id string, status CommandStatus, fields CommandUpdate) error
	GetCommand(ctx context.Context, id string) (Command, error)
	ListCommands(ctx context.Context, filter CommandFilter) ([]Command, error)
	CommandHistory(ctx context.Context, satelliteID string, limit int) ([]Command, error)

	// Telemetry
	InsertTelemetryEvent(ctx context.Context, ev TelemetryEvent) (TelemetryEvent, error)
	UpsertHourlyAggregate(ctx context.Context, agg HourlyAggregate) error
	DeleteTelemetryOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Alarms
	InsertAlarm(ctx context.Context, alarm Alarm) (Alarm, error)
	UpdateAlarm(ctx context.Context, alarm Alarm) error
	GetAlarm(ctx context.Context, id string) (Alarm, error)
	ListAlarms(ctx context.Context, source string, activeOnly bool) ([]Alarm, error)

	// TLE
	UpsertTLE(ctx context.Context, satelliteID string, tle TLE) error

	Close() error
}

// CommandUpdate carries the optional fields a status transition may set
// alongside the new status (spec.md §3: sent_at, started_at, completed_at,
// result, error, retry_count).
type CommandUpdate struct {
	SentAt      *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      map[string]any
	Error       string
	RetryCount  *int
	ScheduledAt *time.Time
}
