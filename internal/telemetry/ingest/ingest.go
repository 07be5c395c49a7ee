// Package ingest implements the telemetry ingester (spec.md §4.9): validate,
// normalize, persist, push into the live satellite actor, detect anomalies
// against threshold tables, and raise alarms — one event at a time or in a
// batch.
package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// Registry is the subset of internal/registry.Registry the ingester needs
// to push a normalized reading into the live actor. Looking an actor up and
// finding it gone is not an error — spec.md §4.9 step 4 says to skip it.
type Registry interface {
	Lookup(id string) (domain.ActorHandle, bool)
}

// Recorder is the subset of internal/telemetry/aggregate.Aggregator the
// ingester feeds: every numeric field a status or position event carries
// becomes one aggregator sample, since the aggregator has no other way to
// see the readings that land in it.
type Recorder interface {
	Record(satelliteID, metric string, value float64, ts time.Time)
}

// HealthNotifier is the subset of internal/health.Monitor the ingester
// nudges after every event (spec.md §2's telemetry control flow: "J records
// data points → K reassesses health").
type HealthNotifier interface {
	Recheck(ctx context.Context, satelliteID string) domain.HealthRecord
}

// Config carries the tunables spec.md §6 exposes for the ingester.
type Config struct {
	RetentionDays int
	Thresholds    domain.Thresholds
}

func DefaultConfig() Config {
	return Config{RetentionDays: domain.DefaultRetentionDays, Thresholds: domain.DefaultThresholds()}
}

// Ingester is the concrete telemetry ingester.
type Ingester struct {
	store    domain.Store
	registry Registry
	recorder Recorder
	alarms   domain.AlarmRaiser
	health   HealthNotifier
	cfg      Config
	now      func() time.Time
	newID    func() string
	logger   *log.Logger

	ingested  int64
	anomalies int64
}

// WithHealthNotifier wires a health monitor to be rechecked after every
// ingested event. Optional — daemon wiring sets this once at startup.
func (in *Ingester) WithHealthNotifier(h HealthNotifier) *Ingester {
	in.health = h
	return in
}

func New(store domain.Store, registry Registry, recorder Recorder, alarms domain.AlarmRaiser, cfg Config) *Ingester {
	if cfg.Thresholds == (domain.Thresholds{}) {
		cfg.Thresholds = domain.DefaultThresholds()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = domain.DefaultRetentionDays
	}
	return &Ingester{
		store:    store,
		registry: registry,
		recorder: recorder,
		alarms:   alarms,
		cfg:      cfg,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		logger:   log.New(os.Stderr, "[ingest] ", log.LstdFlags),
	}
}

// Stats is the snapshot Ingester.Stats returns (spec.md §4.9 stats()).
type Stats struct {
	TotalIngested  int64
	TotalAnomalies int64
}

func (in *Ingester) Stats() Stats {
	return Stats{
		TotalIngested:  atomic.LoadInt64(&in.ingested),
		TotalAnomalies: atomic.LoadInt64(&in.anomalies),
	}
}

// Ingest runs the full pipeline for one event (spec.md §4.9 steps 1-6).
func (in *Ingester) Ingest(ctx context.Context, satelliteID, eventType string, payload map[string]any, source string) (domain.TelemetryEvent, error) {
	if satelliteID == "" {
		return domain.TelemetryEvent{}, domain.NewError(domain.KindValidation, "satellite id is required")
	}
	if eventType == "" {
		return domain.TelemetryEvent{}, domain.NewError(domain.KindValidation, "event type is required")
	}
	if payload == nil {
		return domain.TelemetryEvent{}, domain.NewError(domain.KindValidation, "payload must be a mapping")
	}

	normalized := normalize(eventType, payload)

	ev := domain.TelemetryEvent{
		ID: in.newID(), SatelliteID: satelliteID, EventType: eventType,
		Payload: normalized, RecordedAt: in.now(), Source: source,
	}
	created, err := in.store.InsertTelemetryEvent(ctx, ev)
	if err != nil {
		return domain.TelemetryEvent{}, domain.WrapError(domain.KindTransient, "insert telemetry event", err)
	}
	atomic.AddInt64(&in.ingested, 1)
	metrics.TelemetryIngested.WithLabelValues(eventType).Inc()

	in.updateActor(ctx, satelliteID, eventType, normalized)
	in.record(satelliteID, eventType, normalized, created.RecordedAt)
	if in.health != nil {
		in.health.Recheck(ctx, satelliteID)
	}

	anomalies := detectAnomalies(eventType, normalized, in.cfg.Thresholds)
	if len(anomalies) > 0 {
		atomic.AddInt64(&in.anomalies, int64(len(anomalies)))
		in.raiseAlarms(ctx, satelliteID, anomalies)
	}

	return created, nil
}

// IngestBatch ingests every item in reqs independently: one item's failure
// doesn't stop the rest (spec.md §4.9 ingest_batch).
type IngestRequest struct {
	SatelliteID string
	EventType   string
	Payload     map[string]any
	Source      string
}

func (in *Ingester) IngestBatch(ctx context.Context, reqs []IngestRequest) ([]domain.TelemetryEvent, []error) {
	events := make([]domain.TelemetryEvent, 0, len(reqs))
	errs := make([]error, 0)
	for _, r := range reqs {
		ev, err := in.Ingest(ctx, r.SatelliteID, r.EventType, r.Payload, r.Source)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

// CleanupOldTelemetry deletes events older than the configured retention
// window and returns the count removed (spec.md §4.9 retention sweep).
func (in *Ingester) CleanupOldTelemetry(ctx context.Context) (int64, error) {
	cutoff := in.now().Add(-time.Duration(in.cfg.RetentionDays) * 24 * time.Hour)
	n, err := in.store.DeleteTelemetryOlderThan(ctx, cutoff)
	if err != nil {
		return 0, domain.WrapError(domain.KindTransient, "delete old telemetry", err)
	}
	metrics.TelemetryCleanupDeleted.Add(float64(n))
	return n, nil
}

// normalize applies the per-event-type coercion step (spec.md §4.9 step 2).
//
// The canonical mode set here is domain.Mode's three values
// (nominal/safe/survival), not the literal {nominal,safe,critical,standby}
// some telemetry producers still send — an unrecognized string is dropped
// rather than forwarded, so a stray producer never corrupts the satellite's
// mode field. Position fields are domain.Position's Cartesian X/Y/Z rather
// than latitude/longitude/altitude: longitude maps to X, latitude to Y,
// altitude to Z when present; velocity has no actor-side field, so it's
// coerced and kept in the persisted payload only.
func normalize(eventType string, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		out[k] = v
	}

	switch eventType {
	case "status":
		for _, field := range []string{"energy", "memory", "temperature"} {
			if v, ok := out[field]; ok {
				if f, ok := asFloat(v); ok {
					out[field] = f
				} else {
					delete(out, field)
				}
			}
		}
		if raw, ok := out["mode"]; ok {
			if s, ok := raw.(string); ok {
				out["mode"] = lowerASCII(s)
			}
		}
	case "position":
		if v, ok := out["longitude"]; ok {
			if f, ok := asFloat(v); ok {
				out["x"] = f
			}
		}
		if v, ok := out["latitude"]; ok {
			if f, ok := asFloat(v); ok {
				out["y"] = f
			}
		}
		if v, ok := out["altitude"]; ok {
			if f, ok := asFloat(v); ok {
				out["z"] = f
			}
		}
		if v, ok := out["velocity"]; ok {
			if f, ok := asFloat(v); ok {
				out["velocity"] = f
			}
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// updateActor pushes a normalized status/position reading into the live
// actor (spec.md §4.9 step 4). An absent actor is silently skipped.
func (in *Ingester) updateActor(ctx context.Context, satelliteID, eventType string, normalized map[string]any) {
	if in.registry == nil {
		return
	}
	handle, alive := in.registry.Lookup(satelliteID)
	if !alive {
		return
	}

	switch eventType {
	case "status":
		if energy, ok := normalized["energy"].(float64); ok {
			if _, err := handle.UpdateEnergy(ctx, energy-50); err != nil {
				in.logger.Printf("satellite %s: update energy: %v", satelliteID, err)
			}
		}
		if memory, ok := normalized["memory"].(float64); ok {
			if _, err := handle.UpdateMemory(ctx, memory); err != nil {
				in.logger.Printf("satellite %s: update memory: %v", satelliteID, err)
			}
		}
		if rawMode, ok := normalized["mode"].(string); ok {
			mode := domain.Mode(rawMode)
			if mode.Valid() {
				if _, err := handle.SetMode(ctx, mode); err != nil {
					in.logger.Printf("satellite %s: set mode %s: %v", satelliteID, mode, err)
				}
			}
		}
	case "position":
		x, hasX := normalized["x"].(float64)
		y, hasY := normalized["y"].(float64)
		z, hasZ := normalized["z"].(float64)
		if hasX || hasY || hasZ {
			if _, err := handle.UpdatePosition(ctx, domain.Position{X: x, Y: y, Z: z}); err != nil {
				in.logger.Printf("satellite %s: update position: %v", satelliteID, err)
			}
		}
	}
}

// record feeds every numeric field of a status/position event into the
// aggregator, so its rolling buffers stay in sync with what's persisted.
func (in *Ingester) record(satelliteID, eventType string, normalized map[string]any, ts time.Time) {
	if in.recorder == nil {
		return
	}
	switch eventType {
	case "status":
		for _, metric := range []string{"energy", "memory", "temperature"} {
			if v, ok := normalized[metric].(float64); ok {
				in.recorder.Record(satelliteID, metric, v, ts)
			}
		}
	case "position":
		for _, metric := range []string{"x", "y", "z", "velocity"} {
			if v, ok := normalized[metric].(float64); ok {
				in.recorder.Record(satelliteID, metric, v, ts)
			}
		}
	}
}

// detectAnomalies checks normalized status fields against thresholds
// (spec.md §4.9 step 5): a critical crossing takes priority over a warning
// crossing for the same metric.
func detectAnomalies(eventType string, normalized map[string]any, th domain.Thresholds) []domain.Anomaly {
	if eventType != "status" {
		return nil
	}
	var out []domain.Anomaly

	if v, ok := normalized["energy"].(float64); ok {
		switch {
		case v <= th.EnergyCritical:
			out = append(out, domain.Anomaly{Type: "critical_energy", Severity: domain.SeverityCritical, Message: fmt.Sprintf("energy %.2f at or below critical threshold %.2f", v, th.EnergyCritical)})
		case v <= th.EnergyLow:
			out = append(out, domain.Anomaly{Type: "energy_low", Severity: domain.SeverityWarning, Message: fmt.Sprintf("energy %.2f at or below warning threshold %.2f", v, th.EnergyLow)})
		}
	}
	if v, ok := normalized["memory"].(float64); ok {
		switch {
		case v >= th.MemoryCritical:
			out = append(out, domain.Anomaly{Type: "critical_memory", Severity: domain.SeverityCritical, Message: fmt.Sprintf("memory %.2f at or above critical threshold %.2f", v, th.MemoryCritical)})
		case v >= th.MemoryHigh:
			out = append(out, domain.Anomaly{Type: "memory_high", Severity: domain.SeverityWarning, Message: fmt.Sprintf("memory %.2f at or above warning threshold %.2f", v, th.MemoryHigh)})
		}
	}
	if v, ok := normalized["temperature"].(float64); ok {
		switch {
		case v >= th.TemperatureCritical:
			out = append(out, domain.Anomaly{Type: "critical_temperature", Severity: domain.SeverityCritical, Message: fmt.Sprintf("temperature %.2f at or above critical threshold %.2f", v, th.TemperatureCritical)})
		case v >= th.TemperatureHigh:
			out = append(out, domain.Anomaly{Type: "temperature_high", Severity: domain.SeverityWarning, Message: fmt.Sprintf("temperature %.2f at or above warning threshold %.2f", v, th.TemperatureHigh)})
		case v <= th.TemperatureLow:
			out = append(out, domain.Anomaly{Type: "temperature_low", Severity: domain.SeverityWarning, Message: fmt.Sprintf("temperature %.2f at or below low threshold %.2f", v, th.TemperatureLow)})
		}
	}
	return out
}

func (in *Ingester) raiseAlarms(ctx context.Context, satelliteID string, anomalies []domain.Anomaly) {
	if in.alarms == nil {
		return
	}
	for _, a := range anomalies {
		metrics.TelemetryAnomalies.WithLabelValues(a.Type).Inc()
		_, err := in.alarms.Raise(ctx, domain.Alarm{
			Type: a.Type, Severity: a.Severity, Message: a.Message, Source: satelliteID,
		})
		if err != nil {
			in.logger.Printf("satellite %s: raise alarm %s: %v", satelliteID, a.Type, err)
		}
	}
}
