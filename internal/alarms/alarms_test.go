package alarms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
)

type fakeStore struct {
	mu     sync.Mutex
	alarms map[string]domain.Alarm
}

func newFakeStore() *fakeStore { return &fakeStore{alarms: map[string]domain.Alarm{}} }

func (s *fakeStore) UpsertSatellite(ctx context.Context, sat domain.Satellite) error { return nil }
func (s *fakeStore) GetSatellite(ctx context.Context, id string) (domain.Satellite, error) {
	return domain.Satellite{}, nil
}
func (s *fakeStore) ListSatellites(ctx context.Context) ([]domain.Satellite, error) { return nil, nil }
func (s *fakeStore) InsertCommand(ctx context.Context, cmd domain.Command) (domain.Command, error) {
	return cmd, nil
}
func (s *fakeStore) UpdateCommandStatus(ctx context.Context, id string, status domain.CommandStatus, fields domain.CommandUpdate) error {
	return nil
}
func (s *fakeStore) GetCommand(ctx context.Context, id string) (domain.Command, error) {
	return domain.Command{}, nil
}
func (s *fakeStore) ListCommands(ctx context.Context, filter domain.CommandFilter) ([]domain.Command, error) {
	return nil, nil
}
func (s *fakeStore) CommandHistory(ctx context.Context, satelliteID string, limit int) ([]domain.Command, error) {
	return nil, nil
}
func (s *fakeStore) InsertTelemetryEvent(ctx context.Context, ev domain.TelemetryEvent) (domain.TelemetryEvent, error) {
	return ev, nil
}
func (s *fakeStore) UpsertHourlyAggregate(ctx context.Context, agg domain.HourlyAggregate) error {
	return nil
}
func (s *fakeStore) DeleteTelemetryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeStore) InsertAlarm(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[alarm.ID] = alarm
	return alarm, nil
}
func (s *fakeStore) UpdateAlarm(ctx context.Context, alarm domain.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[alarm.ID]; !ok {
		return domain.NewError(domain.KindNotFound, "alarm not found")
	}
	s.alarms[alarm.ID] = alarm
	return nil
}
func (s *fakeStore) GetAlarm(ctx context.Context, id string) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return domain.Alarm{}, domain.NewError(domain.KindNotFound, "alarm not found")
	}
	return a, nil
}
func (s *fakeStore) ListAlarms(ctx context.Context, source string, activeOnly bool) ([]domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Alarm
	for _, a := range s.alarms {
		if source != "" && a.Source != source {
			continue
		}
		if activeOnly && a.Status != domain.AlarmActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (s *fakeStore) UpsertTLE(ctx context.Context, satelliteID string, tle domain.TLE) error {
	return nil
}
func (s *fakeStore) Close() error { return nil }

type fakeBus struct {
	mu   sync.Mutex
	msgs []struct {
		topic string
		msg   any
	}
}

func (b *fakeBus) Publish(topic string, msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, struct {
		topic string
		msg   any
	}{topic, msg})
}
func (b *fakeBus) Subscribe(topic string) domain.Subscription { return nil }

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

func (b *fakeBus) countTopic(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.msgs {
		if m.topic == topic {
			n++
		}
	}
	return n
}

func TestRaiseAssignsIDAndPersists(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	m := New(store, bus, DefaultConfig())

	created, err := m.Raise(context.Background(), domain.Alarm{
		Type: "energy_low", Severity: domain.SeverityWarning, Source: "sat-1", Message: "low energy",
	})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if created.Status != domain.AlarmActive {
		t.Fatalf("status = %v, want active", created.Status)
	}
	if bus.countTopic("alarms:all") != 1 || bus.countTopic("alarms:sat-1") != 1 {
		t.Fatalf("broadcast counts wrong: %d", bus.count())
	}
}

func TestRaiseRequiresSourceAndType(t *testing.T) {
	m := New(newFakeStore(), nil, DefaultConfig())
	if _, err := m.Raise(context.Background(), domain.Alarm{Type: "x"}); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := m.Raise(context.Background(), domain.Alarm{Source: "sat-1"}); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestRaiseDedupsDuplicateBroadcast(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	m := New(store, bus, DefaultConfig())
	ctx := context.Background()

	if _, err := m.Raise(ctx, domain.Alarm{Type: "energy_low", Source: "sat-1", Message: "m1"}); err != nil {
		t.Fatalf("Raise 1: %v", err)
	}
	if _, err := m.Raise(ctx, domain.Alarm{Type: "energy_low", Source: "sat-1", Message: "m2"}); err != nil {
		t.Fatalf("Raise 2: %v", err)
	}

	if bus.countTopic("alarms:all") != 1 {
		t.Fatalf("expected dedup to suppress second broadcast, got %d", bus.countTopic("alarms:all"))
	}
	if len(store.alarms) != 2 {
		t.Fatalf("expected both persisted despite dedup, got %d", len(store.alarms))
	}
}

func TestRaiseAfterDedupResetBroadcastsAgain(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	m := New(store, bus, DefaultConfig())
	ctx := context.Background()

	if _, err := m.Raise(ctx, domain.Alarm{Type: "energy_low", Source: "sat-1"}); err != nil {
		t.Fatalf("Raise 1: %v", err)
	}
	m.dedup.Reset()
	if _, err := m.Raise(ctx, domain.Alarm{Type: "energy_low", Source: "sat-1"}); err != nil {
		t.Fatalf("Raise 2: %v", err)
	}
	if bus.countTopic("alarms:all") != 2 {
		t.Fatalf("expected broadcast after reset, got %d", bus.countTopic("alarms:all"))
	}
}

func TestAcknowledgeRequiresActorID(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil, DefaultConfig())
	created, _ := m.Raise(context.Background(), domain.Alarm{Type: "t", Source: "s"})

	if _, err := m.Acknowledge(context.Background(), created.ID, ""); err == nil {
		t.Fatal("expected error for empty actor id")
	}
	ack, err := m.Acknowledge(context.Background(), created.ID, "operator-1")
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if ack.Status != domain.AlarmAcknowledged || ack.AcknowledgedBy != "operator-1" {
		t.Fatalf("got %+v", ack)
	}
}

func TestResolveIsTerminal(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil, DefaultConfig())
	created, _ := m.Raise(context.Background(), domain.Alarm{Type: "t", Source: "s"})

	if _, err := m.Resolve(context.Background(), created.ID, "operator-1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := m.Acknowledge(context.Background(), created.ID, "operator-1"); err == nil {
		t.Fatal("expected acknowledge to fail on a resolved alarm")
	}
	if _, err := m.Resolve(context.Background(), created.ID, "operator-1"); err == nil {
		t.Fatal("expected re-resolve to fail")
	}
}

func TestActiveFiltersResolved(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil, DefaultConfig())
	ctx := context.Background()

	a1, _ := m.Raise(ctx, domain.Alarm{Type: "t1", Source: "sat-1"})
	a2, _ := m.Raise(ctx, domain.Alarm{Type: "t2", Source: "sat-1"})
	if _, err := m.Resolve(ctx, a2.ID, "op"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	active, err := m.Active(ctx, "sat-1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(active) != 1 || active[0].ID != a1.ID {
		t.Fatalf("active = %+v, want only %s", active, a1.ID)
	}
}
