// Package httpapi mounts the thin HTTP surface StellarOps exposes alongside
// its WebSocket channel layer: health, Prometheus metrics, the WebSocket
// upgrade route, and a small REST surface over satellites, commands, and
// alarms. The deep REST API (pagination, filtering, auth middleware) is out
// of scope per spec.md §1 — this mirrors only as much of the teacher's
// internal/api/server.go chi router as the in-scope components need a
// caller-visible surface for.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/selfheal"
)

// CommandSink is the subset of the command queue the REST surface drives.
type CommandSink interface {
	Enqueue(ctx context.Context, cmd domain.Command) (domain.Command, error)
	Cancel(ctx context.Context, commandID string) error
}

// AlarmSink is the subset of the alarm manager the REST surface drives.
type AlarmSink interface {
	Active(ctx context.Context, source string) ([]domain.Alarm, error)
	Acknowledge(ctx context.Context, id, actorID string) (domain.Alarm, error)
	Resolve(ctx context.Context, id, actorID string) (domain.Alarm, error)
}

// TelemetrySink is the subset of the telemetry ingester the external push
// endpoint drives (spec.md §2: "external push → I validates+normalizes").
type TelemetrySink interface {
	Ingest(ctx context.Context, satelliteID, eventType string, payload map[string]any, source string) (domain.TelemetryEvent, error)
}

// IncidentSink exposes the auto-healer's incident mesh for inspection.
type IncidentSink interface {
	ActiveIncidents() []*selfheal.Incident
	ResolvedIncidents(limit int) []*selfheal.Incident
	Stats() selfheal.MeshStats
}

// Server is the StellarOps HTTP API server.
type Server struct {
	store          domain.Store
	commands       CommandSink
	alarms         AlarmSink
	telemetry      TelemetrySink
	incidents      IncidentSink
	ws             http.Handler
	metricsEnabled bool
}

// NewServer creates a new API server. ws is the WebSocket hub's ServeHTTP,
// mounted at /ws; it may be nil if the channel layer isn't wired.
func NewServer(store domain.Store, commands CommandSink, alarms AlarmSink, ws http.Handler) *Server {
	return &Server{store: store, commands: commands, alarms: alarms, ws: ws}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTelemetrySink wires the external telemetry push endpoint.
func (s *Server) SetTelemetrySink(t TelemetrySink) { s.telemetry = t }

// SetIncidentSink wires the auto-healer's incident mesh for /api/incidents.
func (s *Server) SetIncidentSink(i IncidentSink) { s.incidents = i }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/satellites", func(r chi.Router) {
		r.Get("/", s.handleListSatellites)
		r.Get("/{id}", s.handleGetSatellite)
		r.Get("/{id}/history", s.handleCommandHistory)
		r.Post("/{id}/telemetry", s.handlePushTelemetry)
	})

	r.Route("/api/commands", func(r chi.Router) {
		r.Post("/", s.handleEnqueueCommand)
		r.Post("/{id}/cancel", s.handleCancelCommand)
	})

	r.Route("/api/alarms", func(r chi.Router) {
		r.Get("/", s.handleListAlarms)
		r.Post("/{id}/acknowledge", s.handleAcknowledgeAlarm)
		r.Post("/{id}/resolve", s.handleResolveAlarm)
	})

	r.Route("/api/incidents", func(r chi.Router) {
		r.Get("/", s.handleListIncidents)
		r.Get("/stats", s.handleIncidentStats)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}

	return r
}

func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	sats, err := s.store.ListSatellites(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sats)
}

func (s *Server) handleGetSatellite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sat, err := s.store.GetSatellite(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sat)
}

func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 50
	history, err := s.store.CommandHistory(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type telemetryRequest struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source"`
}

func (s *Server) handlePushTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, http.StatusServiceUnavailable, "telemetry ingestion not wired")
		return
	}
	id := chi.URLParam(r, "id")
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := s.telemetry.Ingest(r.Context(), id, req.EventType, req.Payload, req.Source)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

type enqueueRequest struct {
	SatelliteID string         `json:"satellite_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    string         `json:"priority"`
	TimeoutMS   int64          `json:"timeout_ms"`
}

func (s *Server) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cmd := domain.Command{
		SatelliteID: req.SatelliteID,
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    domain.PriorityFromName(req.Priority),
		TimeoutMS:   req.TimeoutMS,
	}
	created, err := s.commands.Enqueue(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.commands.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	alarms, err := s.alarms.Active(r.Context(), source)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alarms)
}

type alarmActionRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *Server) handleAcknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req alarmActionRequest
	json.NewDecoder(r.Body).Decode(&req)
	alarm, err := s.alarms.Acknowledge(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alarm)
}

func (s *Server) handleResolveAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req alarmActionRequest
	json.NewDecoder(r.Body).Decode(&req)
	alarm, err := s.alarms.Resolve(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alarm)
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	if s.incidents == nil {
		writeError(w, http.StatusServiceUnavailable, "auto-healing not wired")
		return
	}
	resp := struct {
		Active   []*selfheal.Incident `json:"active"`
		Resolved []*selfheal.Incident `json:"resolved"`
	}{
		Active:   s.incidents.ActiveIncidents(),
		Resolved: s.incidents.ResolvedIncidents(50),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIncidentStats(w http.ResponseWriter, r *http.Request) {
	if s.incidents == nil {
		writeError(w, http.StatusServiceUnavailable, "auto-healing not wired")
		return
	}
	writeJSON(w, http.StatusOK, s.incidents.Stats())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg},
	})
}

// writeDomainError maps a domain.Error's Kind to an HTTP status, so the
// caller-visible {err, {kind, details}} shape of spec.md §7 survives the
// trip over HTTP.
func writeDomainError(w http.ResponseWriter, err error) {
	de, ok := err.(*domain.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindValidation, domain.KindParseError:
		status = http.StatusBadRequest
	case domain.KindInvalidStatus, domain.KindAlreadyExists:
		status = http.StatusConflict
	case domain.KindTimeout:
		status = http.StatusGatewayTimeout
	case domain.KindCircuitOpen, domain.KindNoGroundStation, domain.KindTransient:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"kind": string(de.Kind), "message": de.Message},
	})
}

// corsMiddleware adds CORS headers for local development and dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
