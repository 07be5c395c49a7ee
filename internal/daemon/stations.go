package daemon

import (
	"sync"

	"github.com/stellarops/stellarops/internal/executor"
	"github.com/stellarops/stellarops/internal/infra/healing"
)

// staticStationProvider answers executor.GroundStationProvider from a fixed
// list configured at startup (spec.md names no station topology of its
// own, so the ground segment is a small, config-driven roster). Load is
// tracked per station so selectStation's lower-load preference (spec.md
// §4.5 step 1) has something real to compare. Stations that fail
// transmissions repeatedly are quarantined out of rotation rather than
// retried forever.
type staticStationProvider struct {
	mu         sync.Mutex
	stations   []executor.GroundStation
	quarantine *healing.QuarantineManager
}

func newStaticStationProvider(cfg Config) *staticStationProvider {
	names := cfg.Stations
	if len(names) == 0 {
		names = []string{"gs-default"}
	}
	stations := make([]executor.GroundStation, len(names))
	for i, name := range names {
		stations[i] = executor.GroundStation{ID: name, Online: true, Load: 0}
	}
	return &staticStationProvider{
		stations:   stations,
		quarantine: healing.NewQuarantineManager(healing.DefaultQuarantineConfig()),
	}
}

// Stations returns a snapshot of the configured ground stations, with any
// currently quarantined station reported offline.
func (p *staticStationProvider) Stations() []executor.GroundStation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]executor.GroundStation, len(p.stations))
	for i, s := range p.stations {
		if p.quarantine.IsQuarantined(s.ID) {
			s.Online = false
		}
		out[i] = s
	}
	return out
}

// SetOffline marks a station unavailable, e.g. in response to an operator
// action or a ground-segment outage notification.
func (p *staticStationProvider) SetOffline(id string, offline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.stations {
		if p.stations[i].ID == id {
			p.stations[i].Online = !offline
			return
		}
	}
}

// RecordFailure registers a command-transmission failure against a
// station. Once failures cross the quarantine threshold the station
// drops out of Stations' online set until its cooldown expires. Satisfies
// the optional failureRecorder interface the executor probes for.
func (p *staticStationProvider) RecordFailure(stationID string) {
	p.quarantine.RecordFailure(stationID)
}
