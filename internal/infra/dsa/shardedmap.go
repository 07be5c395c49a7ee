package dsa

import "sync"

// ShardedMap is a striped concurrent string-keyed map, used by the telemetry
// aggregator and health monitor to hold one entry per (satellite, metric)
// or per satellite without a single global mutex serializing every update
// (spec.md §9 design note on sharded process-wide tables).
type ShardedMap struct {
	shards []*shard
	mask   uint32
}

type shard struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewShardedMap creates a map striped across shardCount shards. shardCount
// is rounded up to the next power of two so key->shard routing is a mask,
// not a modulo.
func NewShardedMap(shardCount int) *ShardedMap {
	if shardCount <= 0 {
		shardCount = 32
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	sm := &ShardedMap{
		shards: make([]*shard, n),
		mask:   uint32(n - 1),
	}
	for i := range sm.shards {
		sm.shards[i] = &shard{data: make(map[string]any)}
	}
	return sm
}

func (sm *ShardedMap) shardFor(key string) *shard {
	return sm.shards[hashKey(key)&sm.mask]
}

// Get returns the value stored under key, if any.
func (sm *ShardedMap) Get(key string) (any, bool) {
	s := sm.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (sm *ShardedMap) Set(key string, value any) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key.
func (sm *ShardedMap) Delete(key string) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// GetOrCreate returns the existing value for key, or stores and returns the
// value built by create if key is absent. create runs under the shard's
// lock, so it must be cheap and must not call back into the ShardedMap.
func (sm *ShardedMap) GetOrCreate(key string, create func() any) any {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	v := create()
	s.data[key] = v
	return v
}

// Len returns the total number of entries across all shards.
func (sm *ShardedMap) Len() int {
	total := 0
	for _, s := range sm.shards {
		s.mu.RLock()
		total += len(s.data)
		s.mu.RUnlock()
	}
	return total
}

// Keys returns a snapshot of every key across all shards.
func (sm *ShardedMap) Keys() []string {
	out := make([]string, 0, sm.Len())
	for _, s := range sm.shards {
		s.mu.RLock()
		for k := range s.data {
			out = append(out, k)
		}
		s.mu.RUnlock()
	}
	return out
}

// Range calls fn for every entry. fn must not call back into the
// ShardedMap; iteration order is unspecified and a shard's lock is held for
// the duration of its portion of the range.
func (sm *ShardedMap) Range(fn func(key string, value any) bool) {
	for _, s := range sm.shards {
		s.mu.RLock()
		for k, v := range s.data {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
