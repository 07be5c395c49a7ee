package selfheal

import (
	"testing"
	"time"
)

func newTestMesh(now func() time.Time) *Mesh {
	return NewMesh(Config{
		MaxRemediationAttempts: 2,
		VerificationTimeout:    time.Minute,
		MaxActiveIncidents:     10,
		Now:                    now,
	})
}

func TestDetect_CreatesIncident(t *testing.T) {
	m := newTestMesh(time.Now)
	inc, created := m.Detect("sat-1", FailPowerCritical)
	if !created {
		t.Fatal("expected a new incident")
	}
	if inc.State != StateDetected {
		t.Errorf("State = %s, want DETECTED", inc.State)
	}
}

func TestDetect_DedupesPerSatellite(t *testing.T) {
	m := newTestMesh(time.Now)
	first, _ := m.Detect("sat-1", FailPowerCritical)
	second, created := m.Detect("sat-1", FailThermalCritical)
	if created {
		t.Error("second Detect on the same satellite should not create a new incident")
	}
	if second.ID != first.ID {
		t.Error("expected the existing incident back")
	}
}

func TestLifecycle_ResolvesOnHealthyVerify(t *testing.T) {
	clock := time.Now()
	m := newTestMesh(func() time.Time { return clock })

	inc, _ := m.Detect("sat-1", FailPowerCritical)
	if err := m.Isolate(inc.ID); err != nil {
		t.Fatalf("Isolate: %v", err)
	}
	actions, err := m.Remediate(inc.ID)
	if err != nil {
		t.Fatalf("Remediate: %v", err)
	}
	if len(actions) == 0 {
		t.Fatal("expected runbook actions for power_critical")
	}
	for _, a := range actions {
		m.RecordActionComplete(inc.ID, a.Name)
	}

	clock = clock.Add(5 * time.Second)
	if err := m.Verify(inc.ID, true); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if m.SatelliteHasActiveIncident("sat-1") {
		t.Error("incident should have been finalized")
	}
	resolved := m.ResolvedIncidents(1)
	if len(resolved) != 1 || resolved[0].State != StateResolved {
		t.Fatalf("expected 1 resolved incident, got %+v", resolved)
	}
}

func TestLifecycle_EscalatesAfterMaxAttempts(t *testing.T) {
	clock := time.Now()
	m := newTestMesh(func() time.Time { return clock })

	inc, _ := m.Detect("sat-1", FailMemoryCritical)
	if err := m.Isolate(inc.ID); err != nil {
		t.Fatalf("Isolate: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := m.Remediate(inc.ID); err != nil {
			t.Fatalf("Remediate attempt %d: %v", attempt, err)
		}
		if err := m.Verify(inc.ID, false); err != nil {
			t.Fatalf("Verify attempt %d: %v", attempt, err)
		}
	}

	resolved := m.ResolvedIncidents(1)
	if len(resolved) != 1 || resolved[0].State != StateEscalated {
		t.Fatalf("expected 1 escalated incident, got %+v", resolved)
	}
	stats := m.Stats()
	if stats.TotalEscalated != 1 {
		t.Errorf("TotalEscalated = %d, want 1", stats.TotalEscalated)
	}
}

func TestRemediate_NoRunbookEscalatesImmediately(t *testing.T) {
	m := newTestMesh(time.Now)
	inc, _ := m.Detect("sat-1", FailureType("unmapped_fault"))
	m.Isolate(inc.ID)
	if _, err := m.Remediate(inc.ID); err == nil {
		t.Fatal("expected an error for an unmapped failure type")
	}
	if m.SatelliteHasActiveIncident("sat-1") {
		t.Error("incident should have been escalated and removed from active")
	}
}

func TestActiveIncidentCap(t *testing.T) {
	m := NewMesh(Config{MaxActiveIncidents: 1, Now: time.Now})
	m.Detect("sat-1", FailPowerCritical)
	_, created := m.Detect("sat-2", FailPowerCritical)
	if created {
		t.Error("second satellite's incident should be rejected once the cap is hit")
	}
}

func TestRegisterRunbook_Overrides(t *testing.T) {
	m := newTestMesh(time.Now)
	custom := Runbook{
		FailureType: FailPowerCritical,
		Actions:     []RunbookAction{{Name: "custom_step"}},
	}
	m.RegisterRunbook(custom)
	got := m.Runbooks()[FailPowerCritical]
	if len(got.Actions) != 1 || got.Actions[0].Name != "custom_step" {
		t.Errorf("Runbooks()[FailPowerCritical] = %+v, want overridden runbook", got)
	}
}

func TestIncidentState_String(t *testing.T) {
	tests := []struct {
		state IncidentState
		want  string
	}{
		{StateDetected, "DETECTED"},
		{StateIsolating, "ISOLATING"},
		{StateRemediating, "REMEDIATING"},
		{StateVerifying, "VERIFYING"},
		{StateResolved, "RESOLVED"},
		{StateEscalated, "ESCALATED"},
		{IncidentState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("IncidentState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
		wantTerminal := tt.state == StateResolved || tt.state == StateEscalated
		if tt.state.IsTerminal() != wantTerminal {
			t.Errorf("IncidentState(%d).IsTerminal() = %v, want %v", tt.state, tt.state.IsTerminal(), wantTerminal)
		}
	}
}
