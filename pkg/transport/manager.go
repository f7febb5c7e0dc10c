package transport

import (
	"sort"
	"sync"
)

// Registry tracks the live inbound connections of a listening peer so they
// can be enumerated, dropped or closed together.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]Conn)} }

// Add registers c and returns its id.
func (r *Registry) Add(c Conn) string {
	id := ConnID(c.Kind(), c.RemoteAddr())
	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()
	return id
}

// Remove forgets id without closing it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Len is the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IDs lists the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// CloseAll closes and forgets every connection. It returns how many were closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}
