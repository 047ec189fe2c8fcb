package domain

import "time"

// Outbound event types pushed to broadcast groups.
const (
	EventAuthSuccess     = "auth_success"
	EventOrderCreated    = "order:created"
	EventOrderReady      = "order:ready"
	EventAssignedKitchen = "order:assigned_kitchen"
	EventAssignedWaiter  = "order:assigned_waiter"
	EventOrderDelivered  = "order:delivered"
	EventOrderCancelled  = "order:cancelled"
	EventKitchenQueue    = "queue:kitchen_update"
	EventWaiterQueue     = "queue:waiter_update"
	EventHeartbeat       = "heartbeat"
	EventPong            = "pong"
	EventError           = "error"
)

// Event is the envelope for every server-to-client message.
type Event struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"orderId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(typ, orderID string, data any) Event {
	return Event{Type: typ, OrderID: orderID, Data: data, Timestamp: time.Now().UTC()}
}

// OrderView is the denormalized order payload carried inside order events.
type OrderView struct {
	OrderID      string  `json:"order_id"`
	Status       Status  `json:"status"`
	CustomerName string  `json:"customer_name"`
	TableNumber  *int    `json:"table_number,omitempty"`
	TotalAmount  float64 `json:"total_amount"`
	Claimant     *string `json:"claimant,omitempty"`
}

func ViewOf(o *Order) OrderView {
	v := OrderView{
		OrderID:      o.ID,
		Status:       o.Status,
		CustomerName: o.CustomerName,
		TableNumber:  o.TableNumber,
		TotalAmount:  o.TotalAmount,
	}
	switch o.Status {
	case StatusPreparing:
		v.Claimant = o.KitchenClaimant
	case StatusAssigned, StatusDelivered:
		v.Claimant = o.FloorClaimant
	}
	return v
}

// QueueEntry is the in-memory work-queue record. It is a rebuildable
// snapshot; the persisted order wins on any conflict.
type QueueEntry struct {
	OrderID      string    `json:"order_id"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	Claimant     *string   `json:"claimant,omitempty"`
	CustomerName string    `json:"customer_name"`
	TableNumber  *int      `json:"table_number,omitempty"`
	ItemCount    int       `json:"item_count"`
}

func EntryOf(o *Order) QueueEntry {
	e := QueueEntry{
		OrderID:      o.ID,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
		CustomerName: o.CustomerName,
		TableNumber:  o.TableNumber,
		ItemCount:    len(o.Items),
	}
	switch o.Status {
	case StatusPreparing:
		e.Claimant = o.KitchenClaimant
	case StatusReady, StatusAssigned:
		e.Claimant = o.FloorClaimant
	}
	return e
}
