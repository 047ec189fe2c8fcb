package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-system/internal/domain"
)

// Reconcile rebuilds the queues and claim locks from storage. All reads
// happen before anything is cleared, so a failed read leaves the live
// state untouched. Both queues are re-broadcast in full afterward.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	pending, err := c.store.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("reconcile pending: %w", err)
	}
	ready, err := c.store.ListByStatus(ctx, domain.StatusReady)
	if err != nil {
		return fmt.Errorf("reconcile ready: %w", err)
	}
	preparing, err := c.store.ListByStatus(ctx, domain.StatusPreparing)
	if err != nil {
		return fmt.Errorf("reconcile preparing: %w", err)
	}
	assigned, err := c.store.ListByStatus(ctx, domain.StatusAssigned)
	if err != nil {
		return fmt.Errorf("reconcile assigned: %w", err)
	}

	kitchenQueue := make(map[string]domain.QueueEntry, len(pending))
	for _, o := range pending {
		kitchenQueue[o.ID] = domain.EntryOf(o)
	}
	floorQueue := make(map[string]domain.QueueEntry, len(ready))
	for _, o := range ready {
		floorQueue[o.ID] = domain.EntryOf(o)
	}
	kitchenLocks := make(map[string]claimLock)
	for _, o := range preparing {
		if o.KitchenClaimant == nil {
			continue
		}
		lk := claimLock{Claimant: *o.KitchenClaimant}
		if o.KitchenClaimedAt != nil {
			lk.ClaimedAt = *o.KitchenClaimedAt
		}
		kitchenLocks[o.ID] = lk
	}
	floorLocks := make(map[string]claimLock)
	for _, o := range assigned {
		if o.FloorClaimant == nil {
			continue
		}
		lk := claimLock{Claimant: *o.FloorClaimant}
		if o.FloorClaimedAt != nil {
			lk.ClaimedAt = *o.FloorClaimedAt
		}
		floorLocks[o.ID] = lk
	}

	c.mu.Lock()
	c.kitchenQueue = kitchenQueue
	c.floorQueue = floorQueue
	c.kitchenLocks = kitchenLocks
	c.floorLocks = floorLocks
	c.mu.Unlock()

	c.met.OldestClaimAge.Set(oldestClaimAge(kitchenLocks, floorLocks).Seconds())
	c.broadcastKitchenQueue()
	c.broadcastFloorQueue()

	c.lg.Info("reconciled",
		zap.Int("kitchen_queue", len(kitchenQueue)),
		zap.Int("floor_queue", len(floorQueue)),
		zap.Int("kitchen_locks", len(kitchenLocks)),
		zap.Int("floor_locks", len(floorLocks)))
	return nil
}

// RunReconciliation reconciles once immediately, then on every tick
// until the context is done. Failures are logged and retried on the
// next tick.
func (c *Coordinator) RunReconciliation(ctx context.Context, interval time.Duration) {
	if err := c.Reconcile(ctx); err != nil {
		c.lg.Error("reconcile_failed", zap.Error(err))
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Reconcile(ctx); err != nil {
				c.lg.Error("reconcile_failed", zap.Error(err))
			}
		}
	}
}

func oldestClaimAge(maps ...map[string]claimLock) time.Duration {
	var oldest time.Time
	for _, m := range maps {
		for _, lk := range m {
			if lk.ClaimedAt.IsZero() {
				continue
			}
			if oldest.IsZero() || lk.ClaimedAt.Before(oldest) {
				oldest = lk.ClaimedAt
			}
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}
