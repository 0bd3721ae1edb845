package capture

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// handle is the live capture process of one station.
type handle struct {
	proc      Process
	output    string
	startedAt time.Time
	source    string
	code      string
	operator  string
	station   string
	stopping  atomic.Bool
}

// Registry owns the station key to process mapping. The map never leaves this
// type; the Supervisor only touches it through the methods below.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*handle),
	}
}

func (r *Registry) get(key string) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]

	return h, ok
}

func (r *Registry) put(key string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handles[key] = h
}

func (r *Registry) remove(key string) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	if !ok {
		return nil
	}
	delete(r.handles, key)

	return h
}

func (r *Registry) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Len is the number of registered processes, alive or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}
