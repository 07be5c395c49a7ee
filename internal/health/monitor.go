// Package health implements the health monitor (spec.md §4.11): per-
// subsystem threshold scoring, heartbeat-timeout detection, overall-status
// recompute, and alarm raising on newly-appearing issues. It owns the
// process-memory health table exclusively (spec.md §3 ownership summary).
package health

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/dsa"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// Registry is the subset of internal/registry.Registry the monitor needs:
// look an actor up to read its state, and list every satellite id to drive
// the periodic recheck sweep.
type Registry interface {
	Lookup(id string) (domain.ActorHandle, bool)
	ListIDs() []string
}

// Config tunes the monitor's thresholds and periodic recheck cadence.
type Config struct {
	CheckInterval    time.Duration // default 30s (spec.md §6 health_check_interval_ms)
	HeartbeatTimeout time.Duration // default 120s (spec.md §6 heartbeat_timeout_ms)
	Thresholds       domain.Thresholds
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:    30 * time.Second,
		HeartbeatTimeout: 120 * time.Second,
		Thresholds:       domain.DefaultThresholds(),
	}
}

type entry struct {
	mu            sync.Mutex
	record        domain.HealthRecord
	hasHeartbeat  bool
	lastHeartbeat time.Time
}

// Monitor is the concrete health monitor.
type Monitor struct {
	cfg        Config
	table      *dsa.ShardedMap
	registry   Registry
	aggregator domain.AggregatorReader
	alarms     domain.AlarmRaiser
	bus        domain.Bus
	now        func() time.Time
	logger     *log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(registry Registry, aggregator domain.AggregatorReader, alarms domain.AlarmRaiser, bus domain.Bus, cfg Config) *Monitor {
	if cfg.CheckInterval <= 0 || cfg.HeartbeatTimeout <= 0 {
		d := DefaultConfig()
		if cfg.CheckInterval <= 0 {
			cfg.CheckInterval = d.CheckInterval
		}
		if cfg.HeartbeatTimeout <= 0 {
			cfg.HeartbeatTimeout = d.HeartbeatTimeout
		}
	}
	if cfg.Thresholds == (domain.Thresholds{}) {
		cfg.Thresholds = domain.DefaultThresholds()
	}
	return &Monitor{
		cfg:        cfg,
		table:      dsa.NewShardedMap(32),
		registry:   registry,
		aggregator: aggregator,
		alarms:     alarms,
		bus:        bus,
		now:        time.Now,
		logger:     log.New(os.Stderr, "[health] ", log.LstdFlags),
		stopCh:     make(chan struct{}),
	}
}

// Get returns the last-computed health record for a satellite.
func (m *Monitor) Get(satelliteID string) (domain.HealthRecord, bool) {
	v, ok := m.table.Get(satelliteID)
	if !ok {
		return domain.HealthRecord{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, true
}

// Recheck reassesses one satellite's health (spec.md §4.11): it marks a
// fresh heartbeat, scores every subsystem, recomputes the overall status,
// raises alarms for newly-appearing warning/critical subsystems, and
// broadcasts the updated record.
func (m *Monitor) Recheck(ctx context.Context, satelliteID string) domain.HealthRecord {
	v := m.table.GetOrCreate(satelliteID, func() any { return &entry{} }).(*entry)

	now := m.now()
	v.mu.Lock()
	v.hasHeartbeat = true
	v.lastHeartbeat = now
	previous := v.record
	next := m.score(satelliteID, v.hasHeartbeat, v.lastHeartbeat, now)
	changed := next.OverallStatus != previous.OverallStatus
	newIssues := newlyAppearing(previous.Subsystems, next.Subsystems)
	v.record = next
	v.mu.Unlock()

	if len(newIssues) > 0 {
		m.raiseAlarms(ctx, satelliteID, newIssues)
	}
	if changed || previous.OverallStatus == "" {
		m.broadcast(satelliteID, next)
		if next.OverallStatus == domain.HealthCritical && previous.OverallStatus != domain.HealthCritical {
			metrics.HealthOverallCritical.Inc()
		} else if previous.OverallStatus == domain.HealthCritical && next.OverallStatus != domain.HealthCritical {
			metrics.HealthOverallCritical.Dec()
		}
	}
	for subsystem, health := range next.Subsystems {
		metrics.HealthSubsystemStatus.WithLabelValues(satelliteID, string(subsystem)).Set(statusCode(health.Status))
	}
	return next
}

// statusCode maps a HealthStatus to the numeric scale metrics.HealthSubsystemStatus
// exports (0=unknown, 1=healthy, 2=degraded, 3=warning, 4=critical).
func statusCode(s domain.HealthStatus) float64 {
	switch s {
	case domain.HealthHealthy:
		return 1
	case domain.HealthDegraded:
		return 2
	case domain.HealthWarning:
		return 3
	case domain.HealthCritical:
		return 4
	default:
		return 0
	}
}

func (m *Monitor) score(satelliteID string, hasHeartbeat bool, lastHeartbeat, now time.Time) domain.HealthRecord {
	th := m.cfg.Thresholds
	subsystems := make(map[domain.Subsystem]domain.SubsystemHealth, len(domain.AllSubsystems()))
	for _, s := range domain.AllSubsystems() {
		subsystems[s] = domain.SubsystemHealth{Status: domain.HealthUnknown}
	}

	if handle, alive := m.lookup(satelliteID); alive {
		state, err := handle.GetState(context.Background())
		if err == nil {
			subsystems[domain.SubsystemPower] = domain.SubsystemHealth{
				Status:  scoreLowerWorse(state.Energy, th.EnergyLow, th.EnergyCritical),
				Metrics: map[string]float64{"battery": state.Energy},
			}
			subsystems[domain.SubsystemOnboardComputer] = domain.SubsystemHealth{
				Status:  scoreHigherWorse(state.MemoryUsed, th.MemoryHigh, th.MemoryCritical),
				Metrics: map[string]float64{"memory": state.MemoryUsed},
			}
		}
	}

	if m.aggregator != nil {
		if stats, ok := m.aggregator.GetStats(satelliteID, "temperature")[domain.Window1m]; ok {
			subsystems[domain.SubsystemThermal] = domain.SubsystemHealth{
				Status:  scoreThermal(stats.Avg, th),
				Metrics: map[string]float64{"temperature": stats.Avg},
			}
		}
	}

	commStatus := heartbeatStatus(hasHeartbeat, now.Sub(lastHeartbeat), m.cfg.HeartbeatTimeout)
	subsystems[domain.SubsystemCommunication] = domain.SubsystemHealth{
		Status:  commStatus,
		Metrics: map[string]float64{"heartbeat_age_s": now.Sub(lastHeartbeat).Seconds()},
	}

	trends := map[string]domain.Trend{}
	if m.aggregator != nil {
		for _, metric := range []string{"energy", "memory", "temperature"} {
			trends[metric] = m.aggregator.GetTrend(satelliteID, metric)
		}
	}

	overall, issues := overallStatus(subsystems)
	return domain.HealthRecord{
		SatelliteID:   satelliteID,
		OverallStatus: overall,
		LastHeartbeat: lastHeartbeat,
		Subsystems:    subsystems,
		Issues:        issues,
		Trends:        trends,
		UpdatedAt:     now,
	}
}

func (m *Monitor) lookup(satelliteID string) (domain.ActorHandle, bool) {
	if m.registry == nil {
		return nil, false
	}
	return m.registry.Lookup(satelliteID)
}

// scoreLowerWorse scores a metric where a lower value is worse (e.g.
// battery energy): crossing warnBound is a warning, crossing critBound is
// critical, and the zone between warnBound and 1.5x it is degraded — an
// early-warning band spec.md names as a possible subsystem status without
// defining its boundary.
func scoreLowerWorse(value, warnBound, critBound float64) domain.HealthStatus {
	degradedBound := warnBound * 1.5
	switch {
	case value <= critBound:
		return domain.HealthCritical
	case value <= warnBound:
		return domain.HealthWarning
	case value <= degradedBound:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

// scoreHigherWorse is scoreLowerWorse's mirror for metrics where a higher
// value is worse (memory utilization, temperature).
func scoreHigherWorse(value, warnBound, critBound float64) domain.HealthStatus {
	degradedBound := warnBound * 0.85
	switch {
	case value >= critBound:
		return domain.HealthCritical
	case value >= warnBound:
		return domain.HealthWarning
	case value >= degradedBound:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

// scoreThermal folds in the low-temperature warning threshold alongside the
// usual high/critical ones; spec.md §4.9's threshold table has no
// temperature_low_critical tier, so cold never escalates past warning.
func scoreThermal(value float64, th domain.Thresholds) domain.HealthStatus {
	switch {
	case value >= th.TemperatureCritical:
		return domain.HealthCritical
	case value >= th.TemperatureHigh:
		return domain.HealthWarning
	case value <= th.TemperatureLow:
		return domain.HealthWarning
	case value >= th.TemperatureHigh*0.85:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

// heartbeatStatus implements spec.md §4.11's rule: no heartbeat ever seen is
// unknown; past 2x the timeout is critical; past 1x is warning; else
// healthy.
func heartbeatStatus(hasHeartbeat bool, age, timeout time.Duration) domain.HealthStatus {
	if !hasHeartbeat {
		return domain.HealthUnknown
	}
	switch {
	case age > 2*timeout:
		return domain.HealthCritical
	case age > timeout:
		return domain.HealthWarning
	default:
		return domain.HealthHealthy
	}
}

// overallStatus implements spec.md §4.11's priority order over the six
// subsystems: critical beats warning beats degraded beats a majority-unknown
// table, else healthy. It also returns the issues list: every subsystem at
// warning or critical, formatted "<subsystem>:<status>".
func overallStatus(subsystems map[domain.Subsystem]domain.SubsystemHealth) (domain.HealthStatus, []string) {
	var unknownCount int
	anyCritical, anyWarning, anyDegraded := false, false, false
	var issues []string

	for _, s := range domain.AllSubsystems() {
		sub := subsystems[s]
		switch sub.Status {
		case domain.HealthCritical:
			anyCritical = true
			issues = append(issues, string(s)+":critical")
		case domain.HealthWarning:
			anyWarning = true
			issues = append(issues, string(s)+":warning")
		case domain.HealthDegraded:
			anyDegraded = true
		case domain.HealthUnknown:
			unknownCount++
		}
	}

	switch {
	case anyCritical:
		return domain.HealthCritical, issues
	case anyWarning:
		return domain.HealthWarning, issues
	case anyDegraded:
		return domain.HealthDegraded, issues
	case unknownCount > 3:
		return domain.HealthUnknown, issues
	default:
		return domain.HealthHealthy, issues
	}
}

// newlyAppearing returns the subsystems that moved into warning/critical in
// next but weren't already there in previous (spec.md §4.11: "raise alarms
// for newly-appearing subsystem issues").
func newlyAppearing(previous, next map[domain.Subsystem]domain.SubsystemHealth) []domain.Subsystem {
	var out []domain.Subsystem
	for _, s := range domain.AllSubsystems() {
		n := next[s]
		if n.Status != domain.HealthWarning && n.Status != domain.HealthCritical {
			continue
		}
		p, existed := previous[s]
		if existed && p.Status == n.Status {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *Monitor) raiseAlarms(ctx context.Context, satelliteID string, subsystems []domain.Subsystem) {
	if m.alarms == nil {
		return
	}
	for _, s := range subsystems {
		_, err := m.alarms.Raise(ctx, domain.Alarm{
			Type: "health_" + string(s), Severity: domain.SeverityWarning, Source: satelliteID,
			Message: "subsystem " + string(s) + " health degraded for satellite " + satelliteID,
		})
		if err != nil {
			m.logger.Printf("satellite %s: raise health alarm for %s: %v", satelliteID, s, err)
		}
	}
}

func (m *Monitor) broadcast(satelliteID string, record domain.HealthRecord) {
	if m.bus == nil {
		return
	}
	m.bus.Publish("satellite:"+satelliteID+":health", record)
	m.bus.Publish("health:all", record)
}

// Start launches the 30s periodic recheck of every registered satellite.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.recheckAll(ctx)
		}
	}
}

func (m *Monitor) recheckAll(ctx context.Context) {
	if m.registry == nil {
		return
	}
	for _, id := range m.registry.ListIDs() {
		m.Recheck(ctx, id)
	}
}
