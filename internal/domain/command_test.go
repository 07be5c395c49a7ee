package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to CommandStatus
		want     bool
	}{
		{CommandQueued, CommandPending, true},
		{CommandQueued, CommandCancelled, true},
		{CommandQueued, CommandAcknowledged, false},
		{CommandPending, CommandAcknowledged, true},
		{CommandPending, CommandFailed, true},
		{CommandPending, CommandCancelled, true},
		{CommandPending, CommandExecuting, false},
		{CommandAcknowledged, CommandExecuting, true},
		{CommandAcknowledged, CommandCancelled, true},
		{CommandExecuting, CommandCompleted, true},
		{CommandExecuting, CommandFailed, true},
		{CommandExecuting, CommandCancelled, false},
		{CommandCompleted, CommandFailed, false},
		{CommandFailed, CommandQueued, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCommandStatusIsTerminal(t *testing.T) {
	terminal := []CommandStatus{CommandCompleted, CommandFailed, CommandCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []CommandStatus{CommandQueued, CommandPending, CommandAcknowledged, CommandExecuting}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCommandStatusIsInFlight(t *testing.T) {
	inFlight := []CommandStatus{CommandPending, CommandAcknowledged, CommandExecuting}
	for _, s := range inFlight {
		if !s.IsInFlight() {
			t.Errorf("%s should be in-flight", s)
		}
	}
	if CommandQueued.IsInFlight() {
		t.Error("queued should not be in-flight")
	}
}

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{10, time.Hour}, // capped
	}
	for _, c := range cases {
		if got := RetryBackoff(c.attempt); got != c.want {
			t.Errorf("RetryBackoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestCommandReady(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	noSchedule := &Command{}
	if !noSchedule.Ready(now) {
		t.Error("command with no schedule should be ready")
	}

	due := &Command{ScheduledAt: &past}
	if !due.Ready(now) {
		t.Error("command scheduled in the past should be ready")
	}

	notDue := &Command{ScheduledAt: &future}
	if notDue.Ready(now) {
		t.Error("command scheduled in the future should not be ready")
	}
}

func TestPriorityFromName(t *testing.T) {
	cases := map[string]int{
		"critical": PriorityCritical,
		"high":     PriorityHigh,
		"normal":   PriorityNormal,
		"low":      PriorityLow,
		"bogus":    PriorityNormal,
	}
	for name, want := range cases {
		if got := PriorityFromName(name); got != want {
			t.Errorf("PriorityFromName(%q) = %d, want %d", name, got, want)
		}
	}
}
