package healing

import (
	"testing"
	"time"
)

func newTestQM(t *testing.T, now func() time.Time) *QuarantineManager {
	t.Helper()
	qm := NewQuarantineManager(QuarantineConfig{
		FailureDuration:  1 * time.Hour,
		BanDuration:      30 * 24 * time.Hour,
		BanWindowDays:    7,
		BanThreshold:     3,
		FailureThreshold: 3,
	})
	qm.now = now
	return qm
}

func TestQuarantine_NotQuarantinedByDefault(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	if qm.IsQuarantined("gs-a") {
		t.Error("station should not be quarantined by default")
	}
}

func TestQuarantine_FailureThresholdTriggers(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })

	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")
	if qm.IsQuarantined("gs-a") {
		t.Error("2 failures should not trigger quarantine (threshold=3)")
	}

	rec := qm.RecordFailure("gs-a")
	if rec == nil {
		t.Fatal("3rd failure should return quarantine record")
	}
	if !qm.IsQuarantined("gs-a") {
		t.Error("station should be quarantined after 3 failures")
	}
	if rec.Reason != QuarantineTransmissionFailures {
		t.Errorf("Reason = %q, want %q", rec.Reason, QuarantineTransmissionFailures)
	}
}

func TestQuarantine_FailureCountReset(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a") // triggers quarantine, resets counter

	if qm.FailureCount("gs-a") != 0 {
		t.Errorf("FailureCount after quarantine trigger = %d, want 0", qm.FailureCount("gs-a"))
	}
}

func TestQuarantine_OperatorRequest_Immediate(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	rec := qm.Quarantine("gs-a", QuarantineOperatorRequest)
	if rec == nil {
		t.Fatal("Quarantine should return record")
	}
	if rec.Reason != QuarantineOperatorRequest {
		t.Errorf("Reason = %q, want %q", rec.Reason, QuarantineOperatorRequest)
	}
	if !qm.IsQuarantined("gs-a") {
		t.Error("station should be quarantined immediately")
	}
	expectedExpiry := clock.Add(1 * time.Hour)
	if !rec.ExpiresAt.Equal(expectedExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", rec.ExpiresAt, expectedExpiry)
	}
}

func TestQuarantine_Expires(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")

	clock = clock.Add(2 * time.Hour) // > 1h failure duration
	qm.now = func() time.Time { return clock }

	if qm.IsQuarantined("gs-a") {
		t.Error("quarantine should have expired after 2 hours")
	}
}

func TestQuarantine_Release(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")

	qm.Release("gs-a")
	if qm.IsQuarantined("gs-a") {
		t.Error("station should not be quarantined after Release()")
	}
}

func TestQuarantine_BanEscalation(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		qm.RecordFailure("gs-a")
		qm.RecordFailure("gs-a")
		qm.RecordFailure("gs-a") // each triggers quarantine
		qm.Release("gs-a")       // release so we can trigger again
	}

	count := qm.RecentQuarantineCount("gs-a")
	if count < 3 {
		t.Errorf("RecentQuarantineCount = %d, want >= 3", count)
	}
}

func TestQuarantine_ActiveQuarantine(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")
	qm.RecordFailure("gs-a")

	active := qm.ActiveQuarantine("gs-a")
	if active == nil {
		t.Fatal("ActiveQuarantine should return a record")
	}
	if active.StationID != "gs-a" {
		t.Errorf("StationID = %q, want %q", active.StationID, "gs-a")
	}
}

func TestQuarantine_ActiveQuarantine_None(t *testing.T) {
	clock := time.Now()
	qm := newTestQM(t, func() time.Time { return clock })
	if qm.ActiveQuarantine("nonexistent") != nil {
		t.Error("ActiveQuarantine should be nil for unknown station")
	}
}

func TestQuarantineRecord_IsActive(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		rec    QuarantineRecord
		active bool
	}{
		{"active", QuarantineRecord{ExpiresAt: now.Add(1 * time.Hour)}, true},
		{"expired", QuarantineRecord{ExpiresAt: now.Add(-1 * time.Hour)}, false},
		{"released", QuarantineRecord{ExpiresAt: now.Add(1 * time.Hour), Released: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.IsActive(now); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}
