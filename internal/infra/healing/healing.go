// Package healing implements ground-station quarantine. A station that
// fails repeated command transmissions is pulled out of selectStation's
// rotation for a cooldown period instead of being retried immediately.
// Stations that keep tripping the threshold get progressively longer
// cooldowns, escalating to a long ban if they quarantine too often in a
// rolling window.
//
// Quarantine escalation:
//   - 3 consecutive failures → 1 hour quarantine
//   - 3 quarantines in 7 days → 30 day ban
package healing

import (
	"sync"
	"time"
)

// QuarantineReason explains why a station was quarantined.
type QuarantineReason string

const (
	// QuarantineTransmissionFailures marks escalation from repeated
	// command-transmission failures through a station.
	QuarantineTransmissionFailures QuarantineReason = "transmission_failures"
	// QuarantineOperatorRequest marks a manual quarantine, e.g. in
	// response to a ground-segment outage notification.
	QuarantineOperatorRequest QuarantineReason = "operator_request"
)

// QuarantineRecord tracks a quarantine period for one station.
type QuarantineRecord struct {
	StationID string           `json:"station_id"`
	Reason    QuarantineReason `json:"reason"`
	StartedAt time.Time        `json:"started_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Released  bool             `json:"released"`
}

// IsActive reports whether the quarantine is currently in effect.
func (qr QuarantineRecord) IsActive(now time.Time) bool {
	return !qr.Released && now.Before(qr.ExpiresAt)
}

// QuarantineConfig sets quarantine durations.
type QuarantineConfig struct {
	FailureDuration  time.Duration // quarantine length after FailureThreshold failures (default 1h)
	BanDuration      time.Duration // ban length after BanThreshold quarantines in the window (default 30d)
	BanWindowDays    int           // rolling window for counting quarantines (default 7)
	BanThreshold     int           // quarantines within the window that trigger a ban (default 3)
	FailureThreshold int           // consecutive failures that trigger quarantine (default 3)
}

// DefaultQuarantineConfig returns production defaults.
func DefaultQuarantineConfig() QuarantineConfig {
	return QuarantineConfig{
		FailureDuration:  1 * time.Hour,
		BanDuration:      30 * 24 * time.Hour,
		BanWindowDays:    7,
		BanThreshold:     3,
		FailureThreshold: 3,
	}
}

// QuarantineManager tracks station quarantines with escalation. Safe for
// concurrent use.
type QuarantineManager struct {
	mu       sync.Mutex
	config   QuarantineConfig
	records  map[string][]QuarantineRecord // stationID → history
	failures map[string]int                // stationID → consecutive failure count
	now      func() time.Time
}

// NewQuarantineManager creates a quarantine manager.
func NewQuarantineManager(cfg QuarantineConfig) *QuarantineManager {
	return &QuarantineManager{
		config:   cfg,
		records:  make(map[string][]QuarantineRecord),
		failures: make(map[string]int),
		now:      time.Now,
	}
}

// RecordFailure increments the consecutive-failure count for a station.
// Once the count reaches FailureThreshold the station is quarantined and
// the counter resets. Returns the new record, or nil if not yet tripped.
func (qm *QuarantineManager) RecordFailure(stationID string) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	qm.failures[stationID]++
	if qm.failures[stationID] >= qm.config.FailureThreshold {
		qm.failures[stationID] = 0
		return qm.quarantineLocked(stationID, QuarantineTransmissionFailures)
	}
	return nil
}

// Quarantine immediately quarantines a station, e.g. on operator request.
func (qm *QuarantineManager) Quarantine(stationID string, reason QuarantineReason) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.quarantineLocked(stationID, reason)
}

// IsQuarantined reports whether a station is currently quarantined.
func (qm *QuarantineManager) IsQuarantined(stationID string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	now := qm.now()
	for _, r := range qm.records[stationID] {
		if r.IsActive(now) {
			return true
		}
	}
	return false
}

// ActiveQuarantine returns the active quarantine record for a station, if any.
func (qm *QuarantineManager) ActiveQuarantine(stationID string) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	now := qm.now()
	for _, r := range qm.records[stationID] {
		if r.IsActive(now) {
			rec := r
			return &rec
		}
	}
	return nil
}

// Release manually releases a station from quarantine and clears its
// failure counter.
func (qm *QuarantineManager) Release(stationID string) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	for i := range qm.records[stationID] {
		qm.records[stationID][i].Released = true
	}
	qm.failures[stationID] = 0
}

// RecentQuarantineCount returns how many quarantines a station has had
// within the ban window.
func (qm *QuarantineManager) RecentQuarantineCount(stationID string) int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.recentCountLocked(stationID)
}

// FailureCount returns the current consecutive failure count for a station.
func (qm *QuarantineManager) FailureCount(stationID string) int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.failures[stationID]
}

func (qm *QuarantineManager) quarantineLocked(stationID string, reason QuarantineReason) *QuarantineRecord {
	now := qm.now()
	duration := qm.config.FailureDuration

	// Escalate to a ban if this station has quarantined too often recently.
	recentCount := qm.recentCountLocked(stationID)
	if recentCount+1 >= qm.config.BanThreshold {
		duration = qm.config.BanDuration
	}

	record := QuarantineRecord{
		StationID: stationID,
		Reason:    reason,
		StartedAt: now,
		ExpiresAt: now.Add(duration),
	}

	qm.records[stationID] = append(qm.records[stationID], record)
	return &record
}

func (qm *QuarantineManager) recentCountLocked(stationID string) int {
	now := qm.now()
	windowStart := now.AddDate(0, 0, -qm.config.BanWindowDays)
	count := 0
	for _, r := range qm.records[stationID] {
		if r.StartedAt.After(windowStart) {
			count++
		}
	}
	return count
}
