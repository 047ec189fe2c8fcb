package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-system/internal/auth"
	"venue-system/internal/domain"
	"venue-system/internal/metrics"
)

type fakeCoordinator struct {
	calls []string
	err   error
}

func (f *fakeCoordinator) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCoordinator) ClaimForPreparation(_ context.Context, orderID, staffID string) error {
	return f.record("prep:" + orderID + ":" + staffID)
}

func (f *fakeCoordinator) MarkPrepared(_ context.Context, orderID string) error {
	return f.record("ready:" + orderID)
}

func (f *fakeCoordinator) ClaimForDelivery(_ context.Context, orderID, staffID string) error {
	return f.record("deliver:" + orderID + ":" + staffID)
}

func (f *fakeCoordinator) MarkDelivered(_ context.Context, orderID string) error {
	return f.record("delivered:" + orderID)
}

type fakeVerifier struct {
	identities map[string]domain.Identity
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, auth.ErrNoCredential
	}
	ident, ok := v.identities[token]
	if !ok {
		return domain.Identity{}, auth.ErrInvalidCredential
	}
	return ident, nil
}

func newTestHandler(coord Coordinator) (*Handler, *Registry, *Router) {
	met := metrics.New()
	registry := NewRegistry(met)
	router := NewRouter(zap.NewNop(), met)
	verifier := &fakeVerifier{identities: map[string]domain.Identity{
		"tok-kitchen":  {ID: "k1", Name: "Chef", Role: domain.RoleKitchen},
		"tok-floor":    {ID: "f1", Name: "Waiter", Role: domain.RoleFloor},
		"tok-customer": {ID: "c1", Name: "Guest", IsCustomer: true},
	}}
	return NewHandler(verifier, registry, router, coord, zap.NewNop()), registry, router
}

func dispatch(t *testing.T, h *Handler, c *Client, msg string) []domain.Event {
	t.Helper()
	h.Dispatch(context.Background(), c, []byte(msg))
	return drain(c)
}

func TestDispatchPing(t *testing.T) {
	h, _, _ := newTestHandler(&fakeCoordinator{})
	c, _ := staffClient(domain.RoleKitchen)

	evs := dispatch(t, h, c, `{"type":"ping"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventPong, evs[0].Type)
}

func TestDispatchJoinLeaveRoom(t *testing.T) {
	h, _, router := newTestHandler(&fakeCoordinator{})
	c, _ := staffClient(domain.RoleAdmin)

	evs := dispatch(t, h, c, `{"type":"join_room","room":"KITCHEN"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, "join_room_success", evs[0].Type)
	assert.Contains(t, router.Groups(c), "KITCHEN")

	evs = dispatch(t, h, c, `{"type":"leave_room","room":"KITCHEN"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, "leave_room_success", evs[0].Type)
	assert.Empty(t, router.Groups(c))

	evs = dispatch(t, h, c, `{"type":"join_room"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)
}

func TestDispatchKitchenAction(t *testing.T) {
	coord := &fakeCoordinator{}
	h, _, _ := newTestHandler(coord)
	c, _ := staffClient(domain.RoleKitchen)
	c.Identity.ID = "k1"

	evs := dispatch(t, h, c, `{"type":"accept_kitchen_order","orderId":"o1"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, "accept_kitchen_order_success", evs[0].Type)
	assert.Equal(t, "o1", evs[0].OrderID)
	assert.Equal(t, []string{"prep:o1:k1"}, coord.calls)
}

func TestDispatchRoleGate(t *testing.T) {
	coord := &fakeCoordinator{}
	h, _, _ := newTestHandler(coord)

	floor, _ := staffClient(domain.RoleFloor)
	evs := dispatch(t, h, floor, `{"type":"accept_kitchen_order","orderId":"o1"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)

	customer := NewClient(domain.Identity{ID: "c1", IsCustomer: true}, &fakeTransport{})
	evs = dispatch(t, h, customer, `{"type":"mark_order_delivered","orderId":"o1"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)

	assert.Empty(t, coord.calls)
}

func TestDispatchCoordinatorError(t *testing.T) {
	coord := &fakeCoordinator{err: domain.ErrAlreadyClaimed}
	h, _, _ := newTestHandler(coord)
	c, _ := staffClient(domain.RoleKitchen)

	evs := dispatch(t, h, c, `{"type":"accept_kitchen_order","orderId":"o1"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)

	data, ok := evs[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data["message"], "claimed")
}

func TestDispatchMissingOrderID(t *testing.T) {
	h, _, _ := newTestHandler(&fakeCoordinator{})
	c, _ := staffClient(domain.RoleFloor)

	evs := dispatch(t, h, c, `{"type":"accept_waiter_order"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)
}

func TestDispatchMalformedAndUnknown(t *testing.T) {
	h, _, _ := newTestHandler(&fakeCoordinator{})
	c, _ := staffClient(domain.RoleKitchen)

	evs := dispatch(t, h, c, `{not json`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)

	evs = dispatch(t, h, c, `{"type":"reboot_universe"}`)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventError, evs[0].Type)
}

func TestHandshakeAcceptsAndAutoJoins(t *testing.T) {
	h, registry, _ := newTestHandler(&fakeCoordinator{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"?token=tok-kitchen", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, domain.EventAuthSuccess, ev.Type)

	payload, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "k1", payload["identity"])
	assert.Equal(t, "KITCHEN", payload["role"])
	assert.Equal(t, false, payload["is_customer"])

	assert.Eventually(t, func() bool { return registry.Count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestHandshakeRejectsBadCredential(t *testing.T) {
	h, _, _ := newTestHandler(&fakeCoordinator{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"?token=bogus", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(4002), websocket.CloseStatus(err))
}
