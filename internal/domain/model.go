package domain

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusAssigned  Status = "ASSIGNED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Role string

const (
	RoleKitchen Role = "KITCHEN"
	RoleFloor   Role = "FLOOR"
	RoleAdmin   Role = "ADMIN"
)

// Identity is a resolved credential: a staff member with a role, or a
// customer.
type Identity struct {
	ID         string
	Name       string
	Role       Role
	IsCustomer bool
}

type OrderItem struct {
	ID       int64   `json:"id"`
	OrderID  string  `json:"order_id"`
	Name     string  `json:"name"`
	Role     Role    `json:"role"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type Order struct {
	ID           string
	CustomerID   string
	CustomerName string
	TableNumber  *int
	Items        []OrderItem
	TotalAmount  float64
	Status       Status

	KitchenClaimant *string
	FloorClaimant   *string

	CreatedAt        time.Time
	KitchenClaimedAt *time.Time
	ReadyAt          *time.Time
	FloorClaimedAt   *time.Time
	DeliveredAt      *time.Time
}

type Composition int

const (
	CompositionEmpty Composition = iota
	CompositionKitchenOnly
	CompositionFloorOnly
	CompositionHybrid
)

// Composition classifies the order by the fulfillment roles of its items.
func (o *Order) Composition() Composition {
	var kitchen, floor bool
	for _, it := range o.Items {
		switch it.Role {
		case RoleKitchen:
			kitchen = true
		case RoleFloor:
			floor = true
		}
	}
	switch {
	case kitchen && floor:
		return CompositionHybrid
	case kitchen:
		return CompositionKitchenOnly
	case floor:
		return CompositionFloorOnly
	default:
		return CompositionEmpty
	}
}

// CustomerGroup names the broadcast group scoped to a single customer.
func CustomerGroup(customerID string) string { return "customer:" + customerID }
