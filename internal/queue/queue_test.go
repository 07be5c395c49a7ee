package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	commands map[string]domain.Command
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{commands: make(map[string]domain.Command)}
}

func (s *fakeStore) UpsertSatellite(ctx context.Context, sat domain.Satellite) error { return nil }
func (s *fakeStore) GetSatellite(ctx context.Context, id string) (domain.Satellite, error) {
	return domain.Satellite{}, nil
}
func (s *fakeStore) ListSatellites(ctx context.Context) ([]domain.Satellite, error) { return nil, nil }

func (s *fakeStore) InsertCommand(ctx context.Context, cmd domain.Command) (domain.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if cmd.ID == "" {
		cmd.ID = "cmd-" + string(rune('0'+s.seq))
	}
	s.commands[cmd.ID] = cmd
	return cmd, nil
}

func (s *fakeStore) UpdateCommandStatus(ctx context.Context, id string, status domain.CommandStatus, fields domain.CommandUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "no such command")
	}
	cmd.Status = status
	if fields.SentAt != nil {
		cmd.SentAt = fields.SentAt
	}
	if fields.StartedAt != nil {
		cmd.StartedAt = fields.StartedAt
	}
	if fields.CompletedAt != nil {
		cmd.CompletedAt = fields.CompletedAt
	}
	if fields.Result != nil {
		cmd.Result = fields.Result
	}
	if fields.Error != "" {
		cmd.Error = fields.Error
	}
	if fields.RetryCount != nil {
		cmd.RetryCount = *fields.RetryCount
	}
	if fields.ScheduledAt != nil {
		cmd.ScheduledAt = fields.ScheduledAt
	}
	s.commands[id] = cmd
	return nil
}

func (s *fakeStore) GetCommand(ctx context.Context, id string) (domain.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return domain.Command{}, domain.NewError(domain.KindNotFound, "no such command")
	}
	return cmd, nil
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
	return alarm, nil
}
func (s *fakeStore) UpdateAlarm(ctx context.Context, alarm domain.Alarm) error { return nil }
func (s *fakeStore) GetAlarm(ctx context.Context, id string) (domain.Alarm, error) {
	return domain.Alarm{}, nil
}
func (s *fakeStore) ListAlarms(ctx context.Context, source string, activeOnly bool) ([]domain.Alarm, error) {
	return nil, nil
}
func (s *fakeStore) UpsertTLE(ctx context.Context, satelliteID string, tle domain.TLE) error {
	return nil
}
func (s *fakeStore) Close() error { return nil }

func newTestQueue() (*Queue, *fakeStore) {
	store := newFakeStore()
	q := New(store, nil, DefaultConfig())
	return q, store
}

func TestEnqueueAndDispatchOrdersByPriority(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	low, err := q.Enqueue(ctx, domain.Command{ID: "c-low", SatelliteID: "sat-1", Type: "set_mode", Priority: domain.PriorityLow})
	if err != nil {
		t.Fatalf("Enqueue low: %v", err)
	}
	high, err := q.Enqueue(ctx, domain.Command{ID: "c-high", SatelliteID: "sat-1", Type: "set_mode", Priority: domain.PriorityCritical})
	if err != nil {
		t.Fatalf("Enqueue high: %v", err)
	}
	_ = low

	q.Tick(ctx)

	q.mu.Lock()
	_, inFlight := q.inFlight[high.ID]
	q.mu.Unlock()
	if !inFlight {
		t.Fatal("expected the higher-priority command to be dispatched first")
	}
}

func TestAtMostOneInFlightPerSatellite(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, domain.Command{ID: "a", SatelliteID: "sat-2", Type: "noop", Priority: domain.PriorityNormal})
	_, _ = q.Enqueue(ctx, domain.Command{ID: "b", SatelliteID: "sat-2", Type: "noop", Priority: domain.PriorityNormal})

	q.Tick(ctx)
	q.Tick(ctx) // second tick must not dispatch "b" while "a" is in flight

	q.mu.Lock()
	n := len(q.inFlight)
	q.mu.Unlock()
	if n != 1 {
		t.Fatalf("in-flight count = %d, want 1", n)
	}
	_ = a
}

// TestScheduledHeadBlocksLowerPriorityBehindIt pins down the chosen
// (conservative) reading of a same-satellite mix of ready and
// not-yet-scheduled commands: A (low, ready), B (critical, ready), C
// (critical, scheduled 10m out) enqueued together. dispatchReady only
// peeks the head of a satellite's heap and skips the whole satellite if
// that head isn't ready yet, so once B dispatches and C reaches the head,
// A stays queued behind C even though A is ready and C is not.
func TestScheduledHeadBlocksLowerPriorityBehindIt(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	a, err := q.Enqueue(ctx, domain.Command{ID: "a", SatelliteID: "sat-7", Type: "noop", Priority: domain.PriorityLow})
	if err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	b, err := q.Enqueue(ctx, domain.Command{ID: "b", SatelliteID: "sat-7", Type: "noop", Priority: domain.PriorityCritical})
	if err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}
	scheduledAt := q.now().Add(10 * time.Minute)
	_, err = q.Enqueue(ctx, domain.Command{ID: "c", SatelliteID: "sat-7", Type: "noop", Priority: domain.PriorityCritical, ScheduledAt: &scheduledAt})
	if err != nil {
		t.Fatalf("Enqueue c: %v", err)
	}

	q.Tick(ctx)

	q.mu.Lock()
	_, bInFlight := q.inFlight[b.ID]
	_, aInFlight := q.inFlight[a.ID]
	q.mu.Unlock()
	if !bInFlight {
		t.Fatal("expected B (critical, ready) to dispatch first")
	}
	if aInFlight {
		t.Fatal("A must not dispatch ahead of B")
	}

	q.Complete(b.ID, nil)
	q.Tick(ctx)

	q.mu.Lock()
	_, aInFlight = q.inFlight[a.ID]
	q.mu.Unlock()
	if aInFlight {
		t.Fatal("A must stay queued behind C's not-yet-ready head, per the documented conservative dispatch behavior")
	}
}

func TestFailRetriesUntilMaxThenFails(t *testing.T) {
	q, store := newTestQueue()
	ctx := context.Background()

	cmd, _ := q.Enqueue(ctx, domain.Command{ID: "r", SatelliteID: "sat-3", Type: "noop", Priority: domain.PriorityNormal})
	q.Tick(ctx)

	for i := 0; i < domain.MaxCommandRetries; i++ {
		q.Fail(cmd.ID, "transient")
		got, _ := store.GetCommand(ctx, cmd.ID)
		if got.Status != domain.CommandQueued {
			t.Fatalf("iteration %d: status = %s, want queued", i, got.Status)
		}
		q.mu.Lock()
		q.perSat[cmd.SatelliteID].Remove(cmd.ID) // force it back into in-flight path for the next Fail
		q.inFlight[cmd.ID] = &inFlightEntry{cmd: got}
		q.mu.Unlock()
	}

	q.Fail(cmd.ID, "final failure")
	got, _ := store.GetCommand(ctx, cmd.ID)
	if got.Status != domain.CommandFailed {
		t.Fatalf("status after exceeding retries = %s, want failed", got.Status)
	}
}

func TestCancelQueuedCommand(t *testing.T) {
	q, store := newTestQueue()
	ctx := context.Background()

	cmd, _ := q.Enqueue(ctx, domain.Command{ID: "cancel-me", SatelliteID: "sat-4", Type: "noop", Priority: domain.PriorityNormal})
	if err := q.Cancel(ctx, cmd.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := store.GetCommand(ctx, cmd.ID)
	if got.Status != domain.CommandCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	q.Tick(ctx)
	q.mu.Lock()
	_, stillInFlight := q.inFlight[cmd.ID]
	q.mu.Unlock()
	if stillInFlight {
		t.Error("cancelled command should never be dispatched")
	}
}

func TestCancelRejectsExecutingCommand(t *testing.T) {
	q, store := newTestQueue()
	ctx := context.Background()

	cmd, _ := q.Enqueue(ctx, domain.Command{ID: "busy", SatelliteID: "sat-5", Type: "noop", Priority: domain.PriorityNormal})
	q.Tick(ctx)
	q.Acknowledge(cmd.ID)
	q.StartExecution(cmd.ID)

	if err := q.Cancel(ctx, cmd.ID); err == nil {
		t.Fatal("expected error cancelling an executing command")
	}
	got, _ := store.GetCommand(ctx, cmd.ID)
	if got.Status != domain.CommandExecuting {
		t.Errorf("status = %s, want executing (unchanged)", got.Status)
	}
}

func TestTimeoutSweepFailsStaleInFlight(t *testing.T) {
	q, store := newTestQueue()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }
	ctx := context.Background()

	cmd, _ := q.Enqueue(ctx, domain.Command{ID: "slow", SatelliteID: "sat-6", Type: "noop", Priority: domain.PriorityNormal, TimeoutMS: 1000})
	q.Tick(ctx)

	q.now = func() time.Time { return fixed.Add(2 * time.Second) }
	q.Tick(ctx)

	got, _ := store.GetCommand(ctx, cmd.ID)
	if got.Status != domain.CommandQueued {
		t.Fatalf("status after timeout+retry = %s, want queued (retried)", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
}
