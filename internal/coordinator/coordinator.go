// Package coordinator is the state-machine authority for in-flight
// orders. It owns the two in-memory work queues and the per-order claim
// locks; the persisted store is always authoritative, and the in-memory
// view is a rebuildable cache of it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"venue-system/internal/domain"
	"venue-system/internal/metrics"
	"venue-system/internal/notify"
)

// OrderStore is the persisted order surface the coordinator mutates.
// Claim methods are compare-and-set: they fail with
// domain.ErrAlreadyClaimed when a different claimant already holds the
// column, which is the single arbiter of concurrent claim races.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error)
	Transition(ctx context.Context, id string, to domain.Status, from ...domain.Status) (*domain.Order, error)
	ClaimKitchen(ctx context.Context, id, staffID string) (*domain.Order, error)
	AcknowledgeFloor(ctx context.Context, id, staffID string) (*domain.Order, error)
	ClaimFloor(ctx context.Context, id, staffID string) (*domain.Order, error)
}

// Broadcaster fans an event out to a named group.
type Broadcaster interface {
	Broadcast(group string, ev domain.Event)
}

type claimLock struct {
	Claimant  string
	ClaimedAt time.Time
}

type Coordinator struct {
	store OrderStore
	bus   Broadcaster
	pager notify.Pager
	lg    *zap.Logger
	met   *metrics.Metrics

	// mu guards the queues and lock maps only. No storage round-trip
	// happens while it is held.
	mu           sync.Mutex
	kitchenQueue map[string]domain.QueueEntry
	floorQueue   map[string]domain.QueueEntry
	kitchenLocks map[string]claimLock
	floorLocks   map[string]claimLock
}

func New(store OrderStore, bus Broadcaster, pager notify.Pager, lg *zap.Logger, met *metrics.Metrics) *Coordinator {
	return &Coordinator{
		store:        store,
		bus:          bus,
		pager:        pager,
		lg:           lg,
		met:          met,
		kitchenQueue: make(map[string]domain.QueueEntry),
		floorQueue:   make(map[string]domain.QueueEntry),
		kitchenLocks: make(map[string]claimLock),
		floorLocks:   make(map[string]claimLock),
	}
}

// Admit classifies a freshly created order and inserts it into the
// matching work queue. Floor-only orders skip the kitchen flow entirely:
// they are persisted READY before queuing. Orders with no classifiable
// items default into the kitchen flow rather than being dropped.
func (c *Coordinator) Admit(ctx context.Context, o *domain.Order) error {
	switch comp := o.Composition(); comp {
	case domain.CompositionFloorOnly:
		updated, err := c.store.Transition(ctx, o.ID, domain.StatusReady, domain.StatusPending)
		if err != nil {
			return fmt.Errorf("admit %s: %w", o.ID, err)
		}
		c.mu.Lock()
		c.floorQueue[updated.ID] = domain.EntryOf(updated)
		c.mu.Unlock()

		c.broadcastOrder(domain.EventOrderReady, updated,
			string(domain.RoleFloor), string(domain.RoleAdmin), domain.CustomerGroup(updated.CustomerID))
		c.broadcastFloorQueue()
		c.page(ctx, domain.RoleFloor, fmt.Sprintf("Order %s for %s is ready for delivery", updated.ID, updated.CustomerName))
	default:
		if comp == domain.CompositionEmpty {
			c.lg.Warn("empty_order_admitted_to_kitchen", zap.String("order_id", o.ID))
		}
		c.mu.Lock()
		c.kitchenQueue[o.ID] = domain.EntryOf(o)
		c.mu.Unlock()

		c.broadcastOrder(domain.EventOrderCreated, o,
			string(domain.RoleKitchen), string(domain.RoleAdmin))
		c.broadcastKitchenQueue()
		c.page(ctx, domain.RoleKitchen, fmt.Sprintf("New order %s for %s", o.ID, o.CustomerName))
	}
	return nil
}

// ClaimForPreparation lets kitchen staff take exclusive responsibility
// for an order. The in-memory lock is only a fast-fail; the conditional
// update in storage decides the race.
func (c *Coordinator) ClaimForPreparation(ctx context.Context, orderID, staffID string) error {
	if orderID == "" || staffID == "" {
		return fmt.Errorf("%w: order and staff id are required", domain.ErrValidation)
	}

	c.mu.Lock()
	if lk, held := c.kitchenLocks[orderID]; held && lk.Claimant != staffID {
		c.mu.Unlock()
		c.met.ClaimsTotal.WithLabelValues("kitchen", "conflict").Inc()
		return domain.ErrAlreadyClaimed
	}
	_, queued := c.kitchenQueue[orderID]
	c.mu.Unlock()

	if !queued {
		// Queue/storage gap: tolerate it by re-admitting from storage
		// when the order is still genuinely PENDING.
		o, err := c.store.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotQueued
			}
			return fmt.Errorf("claim lookup %s: %w", orderID, err)
		}
		if o.Status != domain.StatusPending {
			return domain.ErrNotQueued
		}
		c.mu.Lock()
		c.kitchenQueue[orderID] = domain.EntryOf(o)
		c.mu.Unlock()
		c.lg.Info("kitchen_queue_healed", zap.String("order_id", orderID))
	}

	updated, err := c.store.ClaimKitchen(ctx, orderID, staffID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			c.met.ClaimsTotal.WithLabelValues("kitchen", "conflict").Inc()
		} else {
			c.met.ClaimsTotal.WithLabelValues("kitchen", "fail").Inc()
		}
		return err
	}

	c.mu.Lock()
	delete(c.kitchenQueue, orderID)
	c.kitchenLocks[orderID] = claimLock{Claimant: staffID, ClaimedAt: time.Now()}
	c.mu.Unlock()

	c.met.ClaimsTotal.WithLabelValues("kitchen", "success").Inc()
	c.broadcastOrder(domain.EventAssignedKitchen, updated,
		string(domain.RoleKitchen), string(domain.RoleAdmin), domain.CustomerGroup(updated.CustomerID))
	c.broadcastKitchenQueue()
	return nil
}

// MarkPrepared moves a PREPARING order to READY and hands it to the
// floor flow.
func (c *Coordinator) MarkPrepared(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	updated, err := c.store.Transition(ctx, orderID, domain.StatusReady, domain.StatusPreparing)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.kitchenLocks, orderID)
	c.floorQueue[orderID] = domain.EntryOf(updated)
	c.mu.Unlock()

	c.broadcastOrder(domain.EventOrderReady, updated,
		string(domain.RoleFloor), string(domain.RoleAdmin), domain.CustomerGroup(updated.CustomerID))
	c.broadcastFloorQueue()

	// Skip the page when floor staff already pre-acknowledged the order.
	if updated.FloorClaimant == nil {
		c.page(ctx, domain.RoleFloor, fmt.Sprintf("Order %s for %s is ready for delivery", updated.ID, updated.CustomerName))
	}
	return nil
}

// ClaimForDelivery acknowledges an order still in the kitchen flow
// (advisory, no lock, no queue removal) or claims a READY order for
// delivery. The persisted floor claimant is authoritative for the
// already-taken check regardless of in-memory lock state.
func (c *Coordinator) ClaimForDelivery(ctx context.Context, orderID, staffID string) error {
	if orderID == "" || staffID == "" {
		return fmt.Errorf("%w: order and staff id are required", domain.ErrValidation)
	}

	o, err := c.store.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotQueued
		}
		return fmt.Errorf("claim lookup %s: %w", orderID, err)
	}
	if o.FloorClaimant != nil && *o.FloorClaimant != staffID {
		c.met.ClaimsTotal.WithLabelValues("floor", "conflict").Inc()
		return domain.ErrAlreadyClaimed
	}

	switch o.Status {
	case domain.StatusPending, domain.StatusPreparing:
		if _, err := c.store.AcknowledgeFloor(ctx, orderID, staffID); err != nil {
			if errors.Is(err, domain.ErrAlreadyClaimed) {
				c.met.ClaimsTotal.WithLabelValues("floor", "conflict").Inc()
			}
			return err
		}
		c.lg.Info("order_preacknowledged",
			zap.String("order_id", orderID), zap.String("staff_id", staffID))
		return nil
	case domain.StatusReady:
		updated, err := c.store.ClaimFloor(ctx, orderID, staffID)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyClaimed) {
				c.met.ClaimsTotal.WithLabelValues("floor", "conflict").Inc()
			} else {
				c.met.ClaimsTotal.WithLabelValues("floor", "fail").Inc()
			}
			return err
		}

		c.mu.Lock()
		delete(c.floorQueue, orderID)
		c.floorLocks[orderID] = claimLock{Claimant: staffID, ClaimedAt: time.Now()}
		c.mu.Unlock()

		c.met.ClaimsTotal.WithLabelValues("floor", "success").Inc()
		c.broadcastOrder(domain.EventAssignedWaiter, updated,
			string(domain.RoleFloor), string(domain.RoleAdmin), domain.CustomerGroup(updated.CustomerID))
		c.broadcastFloorQueue()
		return nil
	default:
		return domain.ErrNotAssignable
	}
}

// MarkDelivered finishes the order. Queue removal is idempotent.
func (c *Coordinator) MarkDelivered(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	updated, err := c.store.Transition(ctx, orderID, domain.StatusDelivered, domain.StatusAssigned)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.kitchenQueue, orderID)
	delete(c.floorQueue, orderID)
	delete(c.kitchenLocks, orderID)
	delete(c.floorLocks, orderID)
	c.mu.Unlock()

	c.broadcastOrder(domain.EventOrderDelivered, updated,
		string(domain.RoleAdmin), domain.CustomerGroup(updated.CustomerID))
	c.broadcastKitchenQueue()
	c.broadcastFloorQueue()
	return nil
}

// Cancel aborts the order from any non-terminal state.
func (c *Coordinator) Cancel(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	updated, err := c.store.Transition(ctx, orderID, domain.StatusCancelled,
		domain.StatusPending, domain.StatusPreparing, domain.StatusReady, domain.StatusAssigned)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.kitchenQueue, orderID)
	delete(c.floorQueue, orderID)
	delete(c.kitchenLocks, orderID)
	delete(c.floorLocks, orderID)
	c.mu.Unlock()

	c.broadcastOrder(domain.EventOrderCancelled, updated,
		string(domain.RoleKitchen), string(domain.RoleFloor), string(domain.RoleAdmin),
		domain.CustomerGroup(updated.CustomerID))
	c.broadcastKitchenQueue()
	c.broadcastFloorQueue()
	c.page(ctx, "", fmt.Sprintf("Order %s was cancelled", updated.ID))
	return nil
}

// KitchenQueue returns the current kitchen queue ordered by creation
// time.
func (c *Coordinator) KitchenQueue() []domain.QueueEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedEntries(c.kitchenQueue)
}

// FloorQueue returns the current floor queue ordered by creation time.
func (c *Coordinator) FloorQueue() []domain.QueueEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedEntries(c.floorQueue)
}

func (c *Coordinator) broadcastOrder(typ string, o *domain.Order, groups ...string) {
	ev := domain.NewEvent(typ, o.ID, domain.ViewOf(o))
	for _, g := range groups {
		c.bus.Broadcast(g, ev)
	}
}

func (c *Coordinator) broadcastKitchenQueue() {
	entries := c.KitchenQueue()
	c.met.QueueDepth.WithLabelValues("kitchen").Set(float64(len(entries)))
	ev := domain.NewEvent(domain.EventKitchenQueue, "", entries)
	c.bus.Broadcast(string(domain.RoleKitchen), ev)
	c.bus.Broadcast(string(domain.RoleAdmin), ev)
}

func (c *Coordinator) broadcastFloorQueue() {
	entries := c.FloorQueue()
	c.met.QueueDepth.WithLabelValues("floor").Set(float64(len(entries)))
	ev := domain.NewEvent(domain.EventWaiterQueue, "", entries)
	c.bus.Broadcast(string(domain.RoleFloor), ev)
	c.bus.Broadcast(string(domain.RoleAdmin), ev)
}

func (c *Coordinator) page(ctx context.Context, role domain.Role, text string) {
	if !c.pager.Page(ctx, role, text) {
		c.lg.Warn("page_not_delivered", zap.String("role", string(role)))
	}
}

func sortedEntries(q map[string]domain.QueueEntry) []domain.QueueEntry {
	out := make([]domain.QueueEntry, 0, len(q))
	for _, e := range q {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
