package ws

import (
	"sync"

	"venue-system/internal/metrics"
)

// Registry tracks every live connection by connection id. It carries no
// business logic; membership in broadcast groups lives in the Router.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	met     *metrics.Metrics
}

func NewRegistry(met *metrics.Metrics) *Registry {
	return &Registry{clients: make(map[string]*Client), met: met}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
	r.met.Connections.Inc()
}

func (r *Registry) Remove(id string) *Client {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()
	if ok {
		r.met.Connections.Dec()
	}
	return c
}

func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Each calls f for every live connection.
func (r *Registry) Each(f func(*Client)) {
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()
	for _, c := range snapshot {
		f(c)
	}
}
