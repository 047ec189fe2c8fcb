package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-system/internal/domain"
)

func TestReconcileRebuildsFromStorage(t *testing.T) {
	now := time.Now()
	k1, f1 := "k1", "f1"

	pending := kitchenOrder("o-pending", "c1")
	ready := kitchenOrder("o-ready", "c2")
	ready.Status = domain.StatusReady
	preparing := kitchenOrder("o-preparing", "c3")
	preparing.Status = domain.StatusPreparing
	preparing.KitchenClaimant = &k1
	preparing.KitchenClaimedAt = &now
	assigned := kitchenOrder("o-assigned", "c4")
	assigned.Status = domain.StatusAssigned
	assigned.FloorClaimant = &f1
	assigned.FloorClaimedAt = &now

	store := newFakeStore(pending, ready, preparing, assigned)
	c, bus, _ := newTestCoordinator(store)

	// Seed stale in-memory state that storage no longer backs.
	stale := kitchenOrder("o-stale", "c9")
	require.NoError(t, c.Admit(context.Background(), stale))

	require.NoError(t, c.Reconcile(context.Background()))

	kq := c.KitchenQueue()
	require.Len(t, kq, 1)
	assert.Equal(t, "o-pending", kq[0].OrderID)

	fq := c.FloorQueue()
	require.Len(t, fq, 1)
	assert.Equal(t, "o-ready", fq[0].OrderID)

	// The kitchen lock for the PREPARING order was rebuilt: a different
	// identity fails fast.
	err := c.ClaimForPreparation(context.Background(), "o-preparing", "k2")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Both queues were re-broadcast in full.
	kEntries, ok := bus.lastQueue(domain.EventKitchenQueue)
	require.True(t, ok)
	assert.Len(t, kEntries, 1)
	fEntries, ok := bus.lastQueue(domain.EventWaiterQueue)
	require.True(t, ok)
	assert.Len(t, fEntries, 1)
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore(kitchenOrder("o1", "c1"), kitchenOrder("o2", "c2"))
	c, _, _ := newTestCoordinator(store)

	require.NoError(t, c.Reconcile(context.Background()))
	firstKitchen, firstFloor := c.KitchenQueue(), c.FloorQueue()

	require.NoError(t, c.Reconcile(context.Background()))

	assert.Equal(t, firstKitchen, c.KitchenQueue())
	assert.Equal(t, firstFloor, c.FloorQueue())
}

func TestReconcileFailurePreservesState(t *testing.T) {
	o := kitchenOrder("o1", "c1")
	store := newFakeStore(o)
	c, _, _ := newTestCoordinator(store)
	require.NoError(t, c.Admit(context.Background(), o))

	store.failList = true
	require.Error(t, c.Reconcile(context.Background()))

	// The failed rebuild never cleared the live queue.
	require.Len(t, c.KitchenQueue(), 1)
	assert.Equal(t, "o1", c.KitchenQueue()[0].OrderID)
}
