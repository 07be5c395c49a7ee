package domain

import "time"

// HealthStatus is the severity scale the health monitor assigns to a
// subsystem, a heartbeat, or a satellite's overall status (spec.md §3, §4.11).
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// Subsystem names the six per-satellite subsystems the health monitor scores
// (spec.md §4.11).
type Subsystem string

const (
	SubsystemPower            Subsystem = "power"
	SubsystemThermal          Subsystem = "thermal"
	SubsystemAttitude         Subsystem = "attitude"
	SubsystemCommunication    Subsystem = "communication"
	SubsystemPayload          Subsystem = "payload"
	SubsystemOnboardComputer  Subsystem = "onboard_computer"
)

// AllSubsystems lists every subsystem scored by the health monitor.
func AllSubsystems() []Subsystem {
	return []Subsystem{
		SubsystemPower, SubsystemThermal, SubsystemAttitude,
		SubsystemCommunication, SubsystemPayload, SubsystemOnboardComputer,
	}
}

// SubsystemHealth is one subsystem's current score and contributing metrics.
type SubsystemHealth struct {
	Status  HealthStatus       `json:"status"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// HealthRecord is the process-memory-only per-satellite health table entry
// (spec.md §3).
type HealthRecord struct {
	SatelliteID     string                      `json:"satellite_id"`
	OverallStatus   HealthStatus                `json:"overall_status"`
	LastHeartbeat   time.Time                   `json:"last_heartbeat"`
	Subsystems      map[Subsystem]SubsystemHealth `json:"subsystems"`
	Issues          []string                    `json:"issues,omitempty"`
	Trends          map[string]Trend            `json:"trends,omitempty"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}
