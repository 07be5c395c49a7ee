package daemon

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/stellarops/stellarops/internal/alarms"
	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/health"
	"github.com/stellarops/stellarops/internal/infra/selfheal"
	"github.com/stellarops/stellarops/internal/queue"
)

// AutoHealer reacts to critical alarms by driving a satellite through
// internal/infra/selfheal's incident lifecycle: it enqueues the matching
// runbook's commands, waits for them to take effect, then rechecks health
// to decide whether the incident resolved or needs another attempt. An
// incident that exhausts its attempts is escalated back to an operator via
// a fresh alarm rather than retried forever.
type AutoHealer struct {
	mesh              *selfheal.Mesh
	queue             *queue.Queue
	health            *health.Monitor
	alarms            *alarms.Manager
	bus               domain.Bus
	verificationDelay time.Duration
	logger            *log.Logger
}

// NewAutoHealer builds an AutoHealer. q enqueues runbook commands, h
// rechecks satellite health after remediation, al raises the escalation
// alarm when a runbook fails to clear the fault.
func NewAutoHealer(q *queue.Queue, h *health.Monitor, al *alarms.Manager, bus domain.Bus, cfg selfheal.Config) *AutoHealer {
	return &AutoHealer{
		mesh:              selfheal.NewMesh(cfg),
		queue:             q,
		health:            h,
		alarms:            al,
		bus:               bus,
		verificationDelay: 5 * time.Second,
		logger:            log.New(os.Stderr, "[autoheal] ", log.LstdFlags),
	}
}

// Mesh exposes the incident mesh for inspection (e.g. by the HTTP API).
func (a *AutoHealer) Mesh() *selfheal.Mesh { return a.mesh }

// Run subscribes to every raised alarm and drives remediation for the ones
// selfheal has a runbook for. Blocks until ctx is cancelled.
func (a *AutoHealer) Run(ctx context.Context) {
	sub := a.bus.Subscribe("alarms:all")
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			ev, ok := msg.(alarms.Event)
			if !ok || ev.Kind != alarms.EventRaised || ev.Alarm.Severity != domain.SeverityCritical {
				continue
			}
			ft := selfheal.FailureType(ev.Alarm.Type)
			if _, known := a.mesh.Runbooks()[ft]; !known {
				continue
			}
			inc, created := a.mesh.Detect(ev.Alarm.Source, ft)
			if !created {
				continue // already being worked
			}
			go a.remediate(ctx, inc.ID, inc.SatelliteID)
		}
	}
}

func (a *AutoHealer) remediate(ctx context.Context, incidentID, satelliteID string) {
	if err := a.mesh.Isolate(incidentID); err != nil {
		a.logger.Printf("incident %s: isolate: %v", incidentID, err)
		return
	}

	for {
		actions, err := a.mesh.Remediate(incidentID)
		if err != nil {
			a.logger.Printf("incident %s: %v", incidentID, err)
			a.raiseEscalation(ctx, satelliteID, incidentID, err.Error())
			return
		}

		for _, act := range actions {
			if act.CommandType != "" {
				cmd := domain.Command{
					SatelliteID: satelliteID,
					Type:        act.CommandType,
					Payload:     act.Payload,
					Priority:    domain.PriorityCritical,
				}
				if _, err := a.queue.Enqueue(ctx, cmd); err != nil {
					a.logger.Printf("incident %s: enqueue %s: %v", incidentID, act.CommandType, err)
				}
			}
			a.mesh.RecordActionComplete(incidentID, act.Name)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.verificationDelay):
		}

		record := a.health.Recheck(ctx, satelliteID)
		healthy := record.OverallStatus == domain.HealthHealthy || record.OverallStatus == domain.HealthDegraded

		if err := a.mesh.Verify(incidentID, healthy); err != nil {
			a.logger.Printf("incident %s: verify: %v", incidentID, err)
			return
		}
		if healthy {
			a.logger.Printf("incident %s: satellite %s recovered", incidentID, satelliteID)
			return
		}
		if _, stillActive := a.mesh.GetIncident(incidentID); !stillActive {
			a.raiseEscalation(ctx, satelliteID, incidentID, "runbook did not clear the fault")
			return
		}
		// mesh transitioned back to isolating for another attempt.
	}
}

func (a *AutoHealer) raiseEscalation(ctx context.Context, satelliteID, incidentID, reason string) {
	_, err := a.alarms.Raise(ctx, domain.Alarm{
		Type:     "auto_heal_escalated",
		Severity: domain.SeverityCritical,
		Source:   satelliteID,
		Message:  "incident " + incidentID + " escalated: " + reason,
	})
	if err != nil {
		a.logger.Printf("incident %s: raise escalation alarm: %v", incidentID, err)
	}
}
