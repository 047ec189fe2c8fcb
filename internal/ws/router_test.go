package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-system/internal/domain"
	"venue-system/internal/metrics"
)

func newTestRouter() *Router {
	return NewRouter(zap.NewNop(), metrics.New())
}

func drain(c *Client) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRouterBroadcast(t *testing.T) {
	r := newTestRouter()
	a, _ := staffClient(domain.RoleKitchen)
	b, _ := staffClient(domain.RoleKitchen)
	other, _ := staffClient(domain.RoleFloor)

	r.Join("KITCHEN", a)
	r.Join("KITCHEN", b)
	r.Join("FLOOR", other)

	r.Broadcast("KITCHEN", domain.NewEvent(domain.EventOrderCreated, "o1", nil))

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
}

func TestRouterBroadcastEmptyGroupIsNoop(t *testing.T) {
	r := newTestRouter()
	r.Broadcast("nobody-home", domain.NewEvent(domain.EventHeartbeat, "", nil))
}

func TestRouterSkipsClosedClients(t *testing.T) {
	r := newTestRouter()
	a, _ := staffClient(domain.RoleKitchen)
	b, _ := staffClient(domain.RoleKitchen)
	r.Join("KITCHEN", a)
	r.Join("KITCHEN", b)

	b.Close()
	r.Broadcast("KITCHEN", domain.NewEvent(domain.EventOrderCreated, "o1", nil))

	require.Len(t, drain(a), 1)

	// The closed client is skipped, not removed from the group.
	assert.Contains(t, r.Groups(b), "KITCHEN")
}

func TestRouterLeave(t *testing.T) {
	r := newTestRouter()
	a, _ := staffClient(domain.RoleKitchen)
	r.Join("KITCHEN", a)
	r.Join("ADMIN", a)
	assert.ElementsMatch(t, []string{"KITCHEN", "ADMIN"}, r.Groups(a))

	r.Leave("KITCHEN", a)
	assert.Equal(t, []string{"ADMIN"}, r.Groups(a))

	r.Broadcast("KITCHEN", domain.NewEvent(domain.EventOrderCreated, "o1", nil))
	assert.Empty(t, drain(a))
}

func TestRouterLeaveAll(t *testing.T) {
	r := newTestRouter()
	a, _ := staffClient(domain.RoleKitchen)
	r.Join("KITCHEN", a)
	r.Join("ADMIN", a)

	r.LeaveAll(a)
	assert.Empty(t, r.Groups(a))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(metrics.New())
	a, _ := staffClient(domain.RoleKitchen)
	b, _ := staffClient(domain.RoleFloor)

	reg.Add(a)
	reg.Add(b)
	assert.Equal(t, 2, reg.Count())

	got, ok := reg.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, got)

	seen := 0
	reg.Each(func(*Client) { seen++ })
	assert.Equal(t, 2, seen)

	removed := reg.Remove(a.ID)
	assert.Equal(t, a, removed)
	assert.Equal(t, 1, reg.Count())
	assert.Nil(t, reg.Remove(a.ID))
}
