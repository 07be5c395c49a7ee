package ws

import (
	"context"
	"strings"

	"github.com/stellarops/stellarops/internal/domain"
)

// resolvedTopic is what a client-facing topic name maps to: the internal
// bus topics a session subscribes to on join, and the function that builds
// its initial snapshot from the read APIs.
type resolvedTopic struct {
	internalTopics []string
	snapshot       func(ctx context.Context, h *Hub) any
}

// resolveTopic maps one of spec.md §4.12's client-facing topic names to its
// backing bus topics and snapshot. "missions:*" and "ssa:*" have no
// producing subsystem anywhere in the system yet, so they resolve to an
// empty snapshot with no live feed rather than an unknown-topic error —
// clients may join them in anticipation of a future producer.
func resolveTopic(clientTopic string) (resolvedTopic, bool) {
	switch {
	case clientTopic == "satellites:lobby":
		return resolvedTopic{
			internalTopics: []string{"health:all"},
			snapshot: func(ctx context.Context, h *Hub) any {
				sats, err := h.store.ListSatellites(ctx)
				if err != nil {
					return []domain.Satellite{}
				}
				return sats
			},
		}, true

	case strings.HasPrefix(clientTopic, "satellites:"):
		id := strings.TrimPrefix(clientTopic, "satellites:")
		return resolvedTopic{
			internalTopics: []string{
				"satellite:" + id,
				"satellite:" + id + ":commands",
				"satellite:" + id + ":health",
				"satellite:" + id + ":aggregates",
			},
			snapshot: func(ctx context.Context, h *Hub) any {
				sat, err := h.store.GetSatellite(ctx, id)
				if err != nil {
					return nil
				}
				return sat
			},
		}, true

	case clientTopic == "alarms:all":
		return resolvedTopic{
			internalTopics: []string{"alarms:all"},
			snapshot: func(ctx context.Context, h *Hub) any {
				alarms, err := h.store.ListAlarms(ctx, "", true)
				if err != nil {
					return alarmSnapshot{ActiveAlarms: []domain.Alarm{}}
				}
				return newAlarmSnapshot(alarms)
			},
		}, true

	case strings.HasPrefix(clientTopic, "alarms:"):
		source := strings.TrimPrefix(clientTopic, "alarms:")
		return resolvedTopic{
			internalTopics: []string{"alarms:" + source},
			snapshot: func(ctx context.Context, h *Hub) any {
				alarms, err := h.store.ListAlarms(ctx, source, true)
				if err != nil {
					return alarmSnapshot{ActiveAlarms: []domain.Alarm{}}
				}
				return newAlarmSnapshot(alarms)
			},
		}, true

	case clientTopic == "commands:updates":
		return resolvedTopic{
			internalTopics: []string{"commands:updates"},
			snapshot: func(ctx context.Context, h *Hub) any {
				cmds, err := h.store.ListCommands(ctx, domain.CommandFilter{NonTerminal: true})
				if err != nil {
					return []domain.Command{}
				}
				return cmds
			},
		}, true

	case strings.HasPrefix(clientTopic, "missions:"), strings.HasPrefix(clientTopic, "ssa:"):
		return resolvedTopic{
			internalTopics: nil,
			snapshot:       func(ctx context.Context, h *Hub) any { return []any{} },
		}, true
	}

	return resolvedTopic{}, false
}

// alarmSnapshot is the join-time payload for "alarms:all"/"alarms:<source>"
// (spec.md §6: "Initial snapshot on join: {summary, active_alarms}").
type alarmSnapshot struct {
	Summary      alarmSummary   `json:"summary"`
	ActiveAlarms []domain.Alarm `json:"active_alarms"`
}

type alarmSummary struct {
	Total      int                          `json:"total"`
	BySeverity map[domain.AlarmSeverity]int `json:"by_severity"`
}

func newAlarmSnapshot(active []domain.Alarm) alarmSnapshot {
	bySeverity := make(map[domain.AlarmSeverity]int, len(active))
	for _, a := range active {
		bySeverity[a.Severity]++
	}
	return alarmSnapshot{
		Summary:      alarmSummary{Total: len(active), BySeverity: bySeverity},
		ActiveAlarms: active,
	}
}
