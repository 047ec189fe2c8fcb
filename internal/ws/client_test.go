package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-system/internal/domain"
)

type fakeTransport struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (t *fakeTransport) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := append([]byte(nil), p...)
	t.writes = append(t.writes, buf)
	return nil
}

func (t *fakeTransport) Close(websocket.StatusCode, string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.writes...)
}

func staffClient(role domain.Role) (*Client, *fakeTransport) {
	tr := &fakeTransport{}
	c := NewClient(domain.Identity{ID: "s1", Name: "Staff", Role: role}, tr)
	return c, tr
}

func TestClientSendAfterClose(t *testing.T) {
	c, _ := staffClient(domain.RoleKitchen)
	assert.True(t, c.Send(domain.NewEvent(domain.EventHeartbeat, "", nil)))

	c.Close()
	assert.False(t, c.Send(domain.NewEvent(domain.EventHeartbeat, "", nil)))
	assert.True(t, c.Closed())

	// Closing twice is harmless.
	c.Close()
}

func TestClientSendFullBufferDrops(t *testing.T) {
	c, _ := staffClient(domain.RoleKitchen)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.Send(domain.NewEvent(domain.EventHeartbeat, "", nil)))
	}
	assert.False(t, c.Send(domain.NewEvent(domain.EventHeartbeat, "", nil)))
}

func TestClientWritePump(t *testing.T) {
	c, tr := staffClient(domain.RoleKitchen)

	done := make(chan struct{})
	go func() {
		c.WritePump(context.Background())
		close(done)
	}()

	c.Send(domain.NewEvent(domain.EventOrderCreated, "o1", nil))
	c.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop after close")
	}

	writes := tr.written()
	require.Len(t, writes, 1)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(writes[0], &ev))
	assert.Equal(t, domain.EventOrderCreated, ev.Type)
	assert.Equal(t, "o1", ev.OrderID)
}
