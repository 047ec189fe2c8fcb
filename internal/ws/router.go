package ws

import (
	"sync"

	"go.uber.org/zap"

	"venue-system/internal/domain"
	"venue-system/internal/metrics"
)

// Router fans structured events out to named broadcast groups. Groups
// are created lazily and never deleted; broadcasting to an empty group
// is a no-op.
type Router struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Client
	lg     *zap.Logger
	met    *metrics.Metrics
}

func NewRouter(lg *zap.Logger, met *metrics.Metrics) *Router {
	return &Router{groups: make(map[string]map[string]*Client), lg: lg, met: met}
}

func (r *Router) Join(group string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[group]
	if !ok {
		g = make(map[string]*Client)
		r.groups[group] = g
	}
	g[c.ID] = c
}

func (r *Router) Leave(group string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[group]; ok {
		delete(g, c.ID)
	}
}

// LeaveAll removes the connection from every group it joined. Called on
// disconnect; a closed transport alone never triggers removal.
func (r *Router) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		delete(g, c.ID)
	}
}

// Groups returns the names of the groups the connection belongs to.
func (r *Router) Groups(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, g := range r.groups {
		if _, ok := g[c.ID]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Broadcast pushes the event to every member of the group. Members with
// a closed transport or a full buffer are silently skipped.
func (r *Router) Broadcast(group string, ev domain.Event) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.groups[group]))
	for _, c := range r.groups[group] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		if !c.Send(ev) {
			r.lg.Debug("broadcast_skip",
				zap.String("group", group),
				zap.String("conn_id", c.ID),
				zap.String("event", ev.Type))
			continue
		}
		r.met.BroadcastsSent.Inc()
	}
}
