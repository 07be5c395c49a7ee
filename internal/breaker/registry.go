package breaker

import "sync"

// Registry owns every named breaker in the process, created lazily on
// first reference (spec.md §4.7: "per named breaker").
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	configs  map[string]Config
	onEvent  func(Event)
}

// NewRegistry creates an empty breaker registry. Per-name configs set via
// Configure override DefaultConfig for breakers created afterward.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker), configs: make(map[string]Config)}
}

// OnEvent installs a callback applied to every breaker this registry
// creates (existing breakers are not retroactively updated).
func (r *Registry) OnEvent(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvent = fn
}

// Configure sets the config used the next time name is first referenced.
func (r *Registry) Configure(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
}

// Get returns the named breaker, creating it with its configured (or
// default) settings on first reference.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg = DefaultConfig()
	}
	b := New(name, cfg)
	if r.onEvent != nil {
		b.OnEvent(r.onEvent)
	}
	r.breakers[name] = b
	return b
}

// Status returns the snapshot for name, or false if it has never been
// referenced.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return b.Snapshot(), true
}

// Reset resets the named breaker, if it exists.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Melt forces the named breaker open, if it exists.
func (r *Registry) Melt(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	b.Melt()
	return true
}

// All returns a snapshot of every breaker the registry has created.
func (r *Registry) All() []Status {
	r.mu.Lock()
	names := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		names = append(names, b)
	}
	r.mu.Unlock()
	out := make([]Status, len(names))
	for i, b := range names {
		out[i] = b.Snapshot()
	}
	return out
}
