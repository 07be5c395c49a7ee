package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/queue"
)

type fakeSink struct {
	mu        sync.Mutex
	acked     []string
	started   []string
	completed map[string]map[string]any
	failed    map[string]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{completed: map[string]map[string]any{}, failed: map[string]string{}}
}

func (s *fakeSink) Acknowledge(id string)   { s.mu.Lock(); defer s.mu.Unlock(); s.acked = append(s.acked, id) }
func (s *fakeSink) StartExecution(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, id)
}
func (s *fakeSink) Complete(id string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[id] = result
}
func (s *fakeSink) Fail(id string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = errMsg
}

func (s *fakeSink) await(t *testing.T, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, done := s.completed[id]
		_, fail := s.failed[id]
		s.mu.Unlock()
		if done || fail {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("command %s never reached a terminal outcome", id)
}

type fakeHandle struct {
	id    string
	mu    sync.Mutex
	state domain.SatelliteState
}

func (f *fakeHandle) ID() string { return f.id }
func (f *fakeHandle) GetState(ctx context.Context) (domain.SatelliteState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}
func (f *fakeHandle) UpdateEnergy(ctx context.Context, delta float64) (domain.SatelliteState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Energy = domain.ClampEnergy(f.state.Energy + delta)
	return f.state, nil
}
func (f *fakeHandle) UpdateMemory(ctx context.Context, value float64) (domain.SatelliteState, error) {
	return domain.SatelliteState{}, nil
}
func (f *fakeHandle) UpdatePosition(ctx context.Context, pos domain.Position) (domain.SatelliteState, error) {
	return domain.SatelliteState{}, nil
}
func (f *fakeHandle) SetMode(ctx context.Context, mode domain.Mode) (domain.SatelliteState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Mode = mode
	return f.state, nil
}
func (f *fakeHandle) Stop() {}

type fakeRegistry struct {
	mu       sync.Mutex
	handles  map[string]*fakeHandle
	alive    map[string]bool
	restarts int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{handles: map[string]*fakeHandle{}, alive: map[string]bool{}}
}

func (r *fakeRegistry) put(id string, st domain.SatelliteState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = &fakeHandle{id: id, state: st}
	r.alive[id] = true
}

func (r *fakeRegistry) Lookup(id string) (domain.ActorHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok || !r.alive[id] {
		return nil, false
	}
	return h, true
}

func (r *fakeRegistry) Start(ctx context.Context, sat domain.Satellite) (domain.ActorHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restarts++
	h := &fakeHandle{id: sat.ID}
	r.handles[sat.ID] = h
	r.alive[sat.ID] = true
	return h, nil
}

func (r *fakeRegistry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alive[id] = false
	return nil
}

type fakeStations struct {
	stations []GroundStation
}

func (f fakeStations) Stations() []GroundStation { return f.stations }

func newTestExecutor(reg *fakeRegistry, stations []GroundStation) (*Executor, *fakeSink) {
	sink := newFakeSink()
	e := New(sink, reg, fakeStations{stations: stations})
	e.sleep = func(time.Duration) {}
	e.rand = func(time.Duration) time.Duration { return 0 }
	return e, sink
}

func TestSelectStationPrefersLowestLoad(t *testing.T) {
	e, _ := newTestExecutor(newFakeRegistry(), []GroundStation{
		{ID: "gs-a", Online: true, Load: 0.8},
		{ID: "gs-b", Online: true, Load: 0.2},
		{ID: "gs-c", Online: false, Load: 0.0},
	})
	got, err := e.selectStation("cmd-1")
	if err != nil {
		t.Fatalf("selectStation: %v", err)
	}
	if got.ID != "gs-b" {
		t.Fatalf("selected %s, want gs-b (lowest load)", got.ID)
	}
}

func TestSelectStationErrorsWhenAllOffline(t *testing.T) {
	e, _ := newTestExecutor(newFakeRegistry(), []GroundStation{
		{ID: "gs-a", Online: false},
	})
	if _, err := e.selectStation("cmd-1"); err != domain.ErrNoGroundStation {
		t.Fatalf("err = %v, want ErrNoGroundStation", err)
	}
}

func TestSelectStationTieBreaksAwayFromPriorFailure(t *testing.T) {
	e, _ := newTestExecutor(newFakeRegistry(), []GroundStation{
		{ID: "gs-a", Online: true, Load: 0.5},
		{ID: "gs-b", Online: true, Load: 0.5},
		{ID: "gs-c", Online: true, Load: 0.5},
	})
	first, err := e.selectStation("cmd-1")
	if err != nil {
		t.Fatalf("selectStation: %v", err)
	}
	e.recordStationFailure("cmd-1", first.ID)

	second, err := e.selectStation("cmd-1")
	if err != nil {
		t.Fatalf("selectStation retry: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("retry selected the same failed station %s again", first.ID)
	}
}

func TestRunSetModeHappyPath(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-1", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-1"}, Alive: true})
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	cmd := domain.Command{ID: "c1", SatelliteID: "sat-1", Type: "set_mode", Payload: map[string]any{"mode": "safe"}}
	e.run(cmd)
	sink.await(t, "c1")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.completed["c1"]["mode"] != domain.ModeSafe {
		t.Fatalf("result mode = %v, want %v", sink.completed["c1"]["mode"], domain.ModeSafe)
	}
	if len(sink.acked) != 1 || len(sink.started) != 1 {
		t.Fatalf("acked/started = %v/%v, want one each", sink.acked, sink.started)
	}
}

func TestRunUpdateEnergy(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-2", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-2"}, Energy: 50, Alive: true})
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	cmd := domain.Command{ID: "c2", SatelliteID: "sat-2", Type: "update_energy", Payload: map[string]any{"delta": -10.0}}
	e.run(cmd)
	sink.await(t, "c2")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.completed["c2"]["energy"] != 40.0 {
		t.Fatalf("energy = %v, want 40", sink.completed["c2"]["energy"])
	}
}

func TestRunDownloadDataCapsDelay(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-3", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-3"}, Alive: true})
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	cmd := domain.Command{ID: "c3", SatelliteID: "sat-3", Type: "download_data", Payload: map[string]any{"size_bytes": 10_000_000.0}}
	e.run(cmd)
	sink.await(t, "c3")

	for _, d := range slept {
		if d > time.Second {
			t.Fatalf("download delay %s exceeds 1s cap", d)
		}
	}
}

func TestRunRebootRestartsActor(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-4", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-4"}, Alive: true})
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	cmd := domain.Command{ID: "c4", SatelliteID: "sat-4", Type: "reboot"}
	e.run(cmd)
	sink.await(t, "c4")

	if reg.restarts != 1 {
		t.Fatalf("restarts = %d, want 1", reg.restarts)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.completed["c4"]["rebooted"] != true {
		t.Fatalf("result = %v, want rebooted true", sink.completed["c4"])
	}
}

func TestRunUnknownTypeIsSynthetic(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-5", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-5"}, Alive: true})
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	cmd := domain.Command{ID: "c5", SatelliteID: "sat-5", Type: "frobnicate"}
	e.run(cmd)
	sink.await(t, "c5")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.completed["c5"]["synthetic"] != true {
		t.Fatalf("result = %v, want synthetic true", sink.completed["c5"])
	}
}

func TestRunFailsWhenSatelliteNotRunning(t *testing.T) {
	reg := newFakeRegistry()
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	cmd := domain.Command{ID: "c6", SatelliteID: "ghost", Type: "set_mode", Payload: map[string]any{"mode": "nominal"}}
	e.run(cmd)
	sink.await(t, "c6")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.failed["c6"] != "satellite_not_running" {
		t.Fatalf("failed reason = %q, want satellite_not_running", sink.failed["c6"])
	}
}

func TestRunFailsWhenNoGroundStation(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-6", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-6"}, Alive: true})
	e, sink := newTestExecutor(reg, nil)

	cmd := domain.Command{ID: "c7", SatelliteID: "sat-6", Type: "set_mode"}
	e.run(cmd)
	sink.await(t, "c7")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.failed["c7"] == "" {
		t.Fatal("expected command to fail with no ground station online")
	}
}

func TestHandleDispatchesAsynchronously(t *testing.T) {
	reg := newFakeRegistry()
	reg.put("sat-7", domain.SatelliteState{Satellite: domain.Satellite{ID: "sat-7"}, Alive: true})
	e, sink := newTestExecutor(reg, []GroundStation{{ID: "gs-a", Online: true}})

	e.Handle(queue.DispatchEvent{Command: domain.Command{ID: "c8", SatelliteID: "sat-7", Type: "set_mode", Payload: map[string]any{"mode": "nominal"}}})
	sink.await(t, "c8")
}
