// Package registry supervises satellite actors: starting their goroutines,
// watching for exit, and restarting them within a bounded rate (spec.md
// §4.6). The supervision shape — a map of named children, panic recovery,
// and a restart counter — is grounded on the hierarchical actor supervisor
// in the inos_v1 kernel-threads reference (spawnChild/superviseChild), with
// the restart budget changed from "max restarts for process lifetime" to
// "at most N crashes within a sliding window" per spec.md, and with a
// mark-down-and-alarm terminal state instead of supervisor shutdown.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// Config controls the restart-rate limiter.
type Config struct {
	MaxRestarts int           // crashes tolerated within Window before marking down
	Window      time.Duration
}

// DefaultConfig matches spec.md §4.6: at most 3 crashes in 10 seconds.
func DefaultConfig() Config {
	return Config{MaxRestarts: 3, Window: 10 * time.Second}
}

type entry struct {
	handle      domain.ActorHandle
	sat         domain.Satellite
	cancel      context.CancelFunc
	crashes     []time.Time
	down        bool
	restartFunc func(ctx context.Context, sat domain.Satellite) domain.ActorHandle
}

// Registry implements domain.Registry: it owns every live actor and
// restarts one whose goroutine exits unexpectedly, up to the configured
// crash-rate budget.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	entries  map[string]*entry
	spawn    func(ctx context.Context, sat domain.Satellite) domain.ActorHandle
	watch    func(domain.ActorHandle) <-chan struct{}
	alarms   domain.AlarmRaiser
	now      func() time.Time
	ctx      context.Context
	cancelAll context.CancelFunc
}

// New builds a Registry. spawn launches a new actor handle for a satellite
// (normally actor.Start, injected so tests can supply a fake); watch
// returns a channel that closes when that handle's owning goroutine has
// exited, so the registry can detect a crash without a dedicated exit
// callback on domain.ActorHandle. alarms may be nil, in which case a
// down-marking is silent.
func New(ctx context.Context, cfg Config, spawn func(context.Context, domain.Satellite) domain.ActorHandle, watch func(domain.ActorHandle) <-chan struct{}, alarms domain.AlarmRaiser) *Registry {
	rootCtx, cancel := context.WithCancel(ctx)
	return &Registry{
		cfg:       cfg,
		entries:   make(map[string]*entry),
		spawn:     spawn,
		watch:     watch,
		alarms:    alarms,
		now:       time.Now,
		ctx:       rootCtx,
		cancelAll: cancel,
	}
}

// Start launches a fresh actor for sat, or returns the existing live handle
// if one is already registered under sat.ID.
func (r *Registry) Start(ctx context.Context, sat domain.Satellite) (domain.ActorHandle, error) {
	r.mu.Lock()
	if e, ok := r.entries[sat.ID]; ok && !e.down {
		r.mu.Unlock()
		return e.handle, nil
	}
	r.mu.Unlock()

	actorCtx, cancel := context.WithCancel(r.ctx)
	handle := r.spawn(actorCtx, sat)

	e := &entry{handle: handle, sat: sat, cancel: cancel}
	r.mu.Lock()
	r.entries[sat.ID] = e
	r.mu.Unlock()
	metrics.ActorsAlive.Inc()

	go r.supervise(sat.ID)
	return handle, nil
}

// supervise waits for the current actor's exit signal and restarts it,
// recording a crash timestamp and marking the satellite down if the
// restart-rate budget is exceeded.
func (r *Registry) supervise(id string) {
	for {
		r.mu.RLock()
		e, ok := r.entries[id]
		r.mu.RUnlock()
		if !ok || e.down {
			return
		}

		exit := r.watch(e.handle)
		select {
		case <-r.ctx.Done():
			return
		case <-exit:
		}

		r.mu.Lock()
		e, ok = r.entries[id]
		if !ok || e.down {
			r.mu.Unlock()
			return
		}

		now := r.now()
		e.crashes = trimWindow(e.crashes, now, r.cfg.Window)
		e.crashes = append(e.crashes, now)

		if len(e.crashes) > r.cfg.MaxRestarts {
			e.down = true
			r.mu.Unlock()
			metrics.ActorsAlive.Dec()
			metrics.ActorsMarkedDown.Inc()
			r.raiseDownAlarm(id)
			return
		}

		actorCtx, cancel := context.WithCancel(r.ctx)
		e.cancel = cancel
		e.handle = r.spawn(actorCtx, e.sat)
		r.mu.Unlock()
		metrics.ActorRestarts.WithLabelValues(id).Inc()
	}
}

func trimWindow(crashes []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := crashes[:0]
	for _, c := range crashes {
		if c.After(cutoff) {
			kept = append(kept, c)
		}
	}
	return kept
}

func (r *Registry) raiseDownAlarm(id string) {
	if r.alarms == nil {
		return
	}
	_, _ = r.alarms.Raise(r.ctx, domain.Alarm{
		Type:     "actor_down",
		Severity: domain.SeverityMajor,
		Message:  "satellite actor exceeded restart budget and was marked down",
		Source:   id,
		Status:   domain.AlarmActive,
	})
}

// Stop cancels and removes the actor registered under id.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return domain.NewError(domain.KindNotFound, "no actor registered for "+id)
	}
	delete(r.entries, id)
	r.mu.Unlock()
	if !e.down {
		metrics.ActorsAlive.Dec()
	}

	e.cancel()
	e.handle.Stop()
	return nil
}

// Lookup returns the live handle for id, if any and not marked down.
func (r *Registry) Lookup(id string) (domain.ActorHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.down {
		return nil, false
	}
	return e.handle, true
}

// ListIDs returns every registered satellite id, including down ones.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live (not down) registered actors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if !e.down {
			n++
		}
	}
	return n
}

// Alive reports whether id is registered and not marked down.
func (r *Registry) Alive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && !e.down
}

// Shutdown stops every actor and tears down the registry's supervision
// goroutines.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
		if !e.down {
			metrics.ActorsAlive.Dec()
		}
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	r.cancelAll()
	for _, e := range entries {
		e.handle.Stop()
	}
}

var _ domain.Registry = (*Registry)(nil)
