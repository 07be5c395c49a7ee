// Package alarms implements domain.AlarmRaiser: the shared alarm
// persistence, broadcast, and de-duplication path consumed by the
// telemetry ingester (spec.md §4.9) and the health monitor (spec.md §4.11).
//
// A single Manager is wired into both callers rather than one per caller so
// the de-dup bloom filter (SPEC_FULL.md §12) sees every alarm raised across
// the process, not just one subsystem's.
package alarms

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/dsa"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// Config tunes the de-dup sweep.
type Config struct {
	// DedupResetInterval matches the health-check interval (spec.md §4.11,
	// default 30s) — the bloom filter is reset on this cadence so a
	// condition that clears and re-triggers after one health check raises
	// a fresh broadcast instead of being suppressed forever.
	DedupResetInterval time.Duration
}

func DefaultConfig() Config {
	return Config{DedupResetInterval: 30 * time.Second}
}

// Manager is the concrete domain.AlarmRaiser: it persists every alarm,
// broadcasts on "alarms:all" and "alarms:<source>", but suppresses a
// duplicate broadcast (not persistence) for a (source, type) pair already
// seen since the last dedup-window reset.
type Manager struct {
	store domain.Store
	bus   domain.Bus

	dedupMu sync.Mutex
	dedup   *dsa.BloomFilter

	cfg    Config
	now    func() time.Time
	newID  func() string
	logger *log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(store domain.Store, bus domain.Bus, cfg Config) *Manager {
	return &Manager{
		store:  store,
		bus:    bus,
		dedup:  dsa.NewBloomFilter(dsa.DefaultBloomConfig()),
		cfg:    cfg,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: log.New(os.Stderr, "[alarms] ", log.LstdFlags),
		stopCh: make(chan struct{}),
	}
}

func dedupKey(source, alarmType string) string { return source + "\x00" + alarmType }

// Event kinds published on "alarms:all"/"alarms:<source>" for every state
// change (spec.md §6: "Subsequent: alarm_raised | alarm_acknowledged |
// alarm_resolved").
const (
	EventRaised       = "alarm_raised"
	EventAcknowledged = "alarm_acknowledged"
	EventResolved     = "alarm_resolved"
)

// Event is the wire message for one alarm state change, tagging the alarm
// with the transition that produced it so a subscriber doesn't have to
// infer it from Alarm.Status alone.
type Event struct {
	Kind  string       `json:"kind"`
	Alarm domain.Alarm `json:"alarm"`
}

func (m *Manager) publish(kind string, alarm domain.Alarm) {
	if m.bus == nil {
		return
	}
	ev := Event{Kind: kind, Alarm: alarm}
	m.bus.Publish("alarms:all", ev)
	m.bus.Publish("alarms:"+alarm.Source, ev)
}

// Raise persists alarm (assigning an ID and CreatedAt/Status if unset) and
// broadcasts it, unless an alarm with the same (source, type) has already
// been broadcast since the last dedup-window reset.
func (m *Manager) Raise(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	if alarm.Source == "" {
		return domain.Alarm{}, domain.NewError(domain.KindValidation, "alarm source is required")
	}
	if alarm.Type == "" {
		return domain.Alarm{}, domain.NewError(domain.KindValidation, "alarm type is required")
	}
	if alarm.ID == "" {
		alarm.ID = m.newID()
	}
	if alarm.Status == "" {
		alarm.Status = domain.AlarmActive
	}
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = m.now()
	}

	created, err := m.store.InsertAlarm(ctx, alarm)
	if err != nil {
		return domain.Alarm{}, domain.WrapError(domain.KindTransient, "insert alarm", err)
	}

	key := dedupKey(created.Source, created.Type)
	m.dedupMu.Lock()
	duplicate := m.dedup.Contains(key)
	m.dedup.Add(key)
	m.dedupMu.Unlock()

	metrics.AlarmsRaised.WithLabelValues(string(created.Severity)).Inc()
	metrics.AlarmsActive.Inc()
	if duplicate {
		metrics.AlarmsDeduped.Inc()
	} else {
		m.publish(EventRaised, created)
	}
	return created, nil
}

// Acknowledge marks an alarm acknowledged by actorID (spec.md §3: requires a
// non-empty actor id).
func (m *Manager) Acknowledge(ctx context.Context, id, actorID string) (domain.Alarm, error) {
	if actorID == "" {
		return domain.Alarm{}, domain.NewError(domain.KindValidation, "actor id is required to acknowledge an alarm")
	}
	alarm, err := m.store.GetAlarm(ctx, id)
	if err != nil {
		return domain.Alarm{}, err
	}
	if alarm.Status == domain.AlarmResolved {
		return domain.Alarm{}, domain.NewError(domain.KindInvalidStatus, "alarm is already resolved")
	}

	now := m.now()
	alarm.Status = domain.AlarmAcknowledged
	alarm.AcknowledgedBy = actorID
	alarm.AcknowledgedAt = &now
	if err := m.store.UpdateAlarm(ctx, alarm); err != nil {
		return domain.Alarm{}, domain.WrapError(domain.KindTransient, "update alarm", err)
	}

	m.publish(EventAcknowledged, alarm)
	return alarm, nil
}

// Resolve marks an alarm resolved by actorID. Resolution is terminal: a
// resolved alarm cannot be acknowledged or re-resolved (spec.md §3).
func (m *Manager) Resolve(ctx context.Context, id, actorID string) (domain.Alarm, error) {
	if actorID == "" {
		return domain.Alarm{}, domain.NewError(domain.KindValidation, "actor id is required to resolve an alarm")
	}
	alarm, err := m.store.GetAlarm(ctx, id)
	if err != nil {
		return domain.Alarm{}, err
	}
	if alarm.Status == domain.AlarmResolved {
		return domain.Alarm{}, domain.NewError(domain.KindInvalidStatus, "alarm is already resolved")
	}

	now := m.now()
	alarm.Status = domain.AlarmResolved
	alarm.ResolvedBy = actorID
	alarm.ResolvedAt = &now
	if err := m.store.UpdateAlarm(ctx, alarm); err != nil {
		return domain.Alarm{}, domain.WrapError(domain.KindTransient, "update alarm", err)
	}
	metrics.AlarmsActive.Dec()

	m.publish(EventResolved, alarm)
	return alarm, nil
}

// Active lists alarms whose status is active, optionally scoped to one
// source; acknowledged and resolved alarms are excluded.
func (m *Manager) Active(ctx context.Context, source string) ([]domain.Alarm, error) {
	return m.store.ListAlarms(ctx, source, true)
}

// Start launches the periodic dedup-window reset.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.resetLoop(ctx)
}

func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) resetLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.cfg.DedupResetInterval
	if interval <= 0 {
		interval = DefaultConfig().DedupResetInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.dedupMu.Lock()
			m.dedup.Reset()
			m.dedupMu.Unlock()
		}
	}
}

var _ domain.AlarmRaiser = (*Manager)(nil)
