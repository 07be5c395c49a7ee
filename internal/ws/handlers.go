package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
)

// Handler processes one inbound {event, payload} frame and returns the
// value to carry in a {ok, body} reply, or an error to carry in {err,
// {reason, details}}.
type Handler func(ctx context.Context, s *Session, payload json.RawMessage) (any, error)

// handlers is the fixed routing table from event name to handler. Every
// entry wraps a call into the queue, actor registry, or alarm subsystem —
// the channel layer itself holds no domain logic (spec.md §4.12).
var handlers = map[string]Handler{
	"join":               handleJoin,
	"leave":              handleLeave,
	"command.enqueue":    handleCommandEnqueue,
	"command.cancel":     handleCommandCancel,
	"alarm.acknowledge":  handleAlarmAcknowledge,
	"alarm.resolve":      handleAlarmResolve,
	"satellite.get_state": handleSatelliteGetState,
}

type joinPayload struct {
	Topic string `json:"topic"`
}

func handleJoin(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	var req joinPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Topic == "" {
		return nil, newHandlerError("bad_request", "payload requires a non-empty topic")
	}
	return s.join(ctx, req.Topic)
}

func handleLeave(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	var req joinPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Topic == "" {
		return nil, newHandlerError("bad_request", "payload requires a non-empty topic")
	}
	s.leave(req.Topic)
	return map[string]string{"topic": req.Topic}, nil
}

type enqueuePayload struct {
	SatelliteID string         `json:"satellite_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    string         `json:"priority"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	TimeoutMS   int64          `json:"timeout_ms"`
}

func handleCommandEnqueue(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	if s.hub.commands == nil {
		return nil, newHandlerError("unavailable", "command queue not wired")
	}
	var req enqueuePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, newHandlerError("bad_request", err.Error())
	}
	if req.SatelliteID == "" || req.Type == "" {
		return nil, newHandlerError("bad_request", "satellite_id and type are required")
	}

	cmd := domain.Command{
		SatelliteID: req.SatelliteID,
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    domain.PriorityFromName(req.Priority),
		ScheduledAt: req.ScheduledAt,
		TimeoutMS:   req.TimeoutMS,
	}
	created, err := s.hub.commands.Enqueue(ctx, cmd)
	if err != nil {
		return nil, toHandlerError(err)
	}
	return created, nil
}

type cancelPayload struct {
	CommandID string `json:"command_id"`
}

func handleCommandCancel(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	if s.hub.commands == nil {
		return nil, newHandlerError("unavailable", "command queue not wired")
	}
	var req cancelPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.CommandID == "" {
		return nil, newHandlerError("bad_request", "command_id is required")
	}
	if err := s.hub.commands.Cancel(ctx, req.CommandID); err != nil {
		return nil, toHandlerError(err)
	}
	return map[string]string{"command_id": req.CommandID}, nil
}

type alarmActionPayload struct {
	ID string `json:"id"`
}

func handleAlarmAcknowledge(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	if s.hub.alarms == nil {
		return nil, newHandlerError("unavailable", "alarm manager not wired")
	}
	var req alarmActionPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == "" {
		return nil, newHandlerError("bad_request", "id is required")
	}
	alarm, err := s.hub.alarms.Acknowledge(ctx, req.ID, s.actorID)
	if err != nil {
		return nil, toHandlerError(err)
	}
	return alarm, nil
}

func handleAlarmResolve(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	if s.hub.alarms == nil {
		return nil, newHandlerError("unavailable", "alarm manager not wired")
	}
	var req alarmActionPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == "" {
		return nil, newHandlerError("bad_request", "id is required")
	}
	alarm, err := s.hub.alarms.Resolve(ctx, req.ID, s.actorID)
	if err != nil {
		return nil, toHandlerError(err)
	}
	return alarm, nil
}

type satelliteIDPayload struct {
	SatelliteID string `json:"satellite_id"`
}

func handleSatelliteGetState(ctx context.Context, s *Session, payload json.RawMessage) (any, error) {
	if s.hub.registry == nil {
		return nil, newHandlerError("unavailable", "satellite registry not wired")
	}
	var req satelliteIDPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.SatelliteID == "" {
		return nil, newHandlerError("bad_request", "satellite_id is required")
	}
	handle, ok := s.hub.registry.Lookup(req.SatelliteID)
	if !ok {
		return nil, newHandlerError("not_found", req.SatelliteID)
	}
	state, err := handle.GetState(ctx)
	if err != nil {
		return nil, toHandlerError(err)
	}
	return state, nil
}

// toHandlerError maps a domain.Error's kind to a stable reason string;
// anything else is reported as "internal".
func toHandlerError(err error) *handlerError {
	if de, ok := err.(*domain.Error); ok {
		return newHandlerError(string(de.Kind), de.Message)
	}
	return newHandlerError("internal", err.Error())
}
