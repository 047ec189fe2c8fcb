// Package intake is the order entry point: it persists a new order and
// its items, then hands control to the coordinator.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue-system/internal/domain"
)

type Store interface {
	Create(ctx context.Context, o *domain.Order) error
}

type Coordinator interface {
	Admit(ctx context.Context, o *domain.Order) error
	Cancel(ctx context.Context, orderID string) error
}

type createItem struct {
	Name     string      `json:"name"`
	Role     domain.Role `json:"role"`
	Quantity int         `json:"quantity"`
	Price    float64     `json:"price"`
}

type createRequest struct {
	CustomerID   string       `json:"customer_id"`
	CustomerName string       `json:"customer_name"`
	TableNumber  *int         `json:"table_number,omitempty"`
	Items        []createItem `json:"items"`
}

type createResponse struct {
	OrderID     string        `json:"order_id"`
	Status      domain.Status `json:"status"`
	TotalAmount float64       `json:"total_amount"`
}

type Handler struct {
	store Store
	coord Coordinator
	lg    *zap.Logger
}

func NewHandler(store Store, coord Coordinator, lg *zap.Logger) *Handler {
	return &Handler{store: store, coord: coord, lg: lg}
}

// Register mounts the intake routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/orders", h.create)
	mux.HandleFunc("/orders/", h.cancel)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	o, err := buildOrder(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Create(r.Context(), o); err != nil {
		h.lg.Error("order_create_failed", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	// The order is durable at this point. An admit failure leaves it
	// PENDING, where the reconciliation loop will pick it up.
	if err := h.coord.Admit(r.Context(), o); err != nil {
		h.lg.Error("order_admit_failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createResponse{
		OrderID:     o.ID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
	})
	h.lg.Info("order_received",
		zap.String("order_id", o.ID),
		zap.Float64("total", o.TotalAmount))
}

// cancel handles POST /orders/{id}/cancel, the admin-side abort path.
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/orders/")
	orderID, ok := strings.CutSuffix(rest, "/cancel")
	if !ok || orderID == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := h.coord.Cancel(r.Context(), orderID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "order not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrTransition):
			http.Error(w, "order already terminal", http.StatusConflict)
		default:
			h.lg.Error("order_cancel_failed", zap.String("order_id", orderID), zap.Error(err))
			http.Error(w, "db error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildOrder(req createRequest) (*domain.Order, error) {
	if req.CustomerID == "" || req.CustomerName == "" {
		return nil, fmt.Errorf("customer_id and customer_name are required")
	}

	total := 0.0
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Name == "" {
			return nil, fmt.Errorf("item name is required")
		}
		if it.Role != domain.RoleKitchen && it.Role != domain.RoleFloor {
			return nil, fmt.Errorf("invalid role for item %s", it.Name)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity for item %s", it.Name)
		}
		if it.Price <= 0 {
			return nil, fmt.Errorf("invalid price for item %s", it.Name)
		}
		total += float64(it.Quantity) * it.Price
		items = append(items, domain.OrderItem{
			Name:     it.Name,
			Role:     it.Role,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}

	return &domain.Order{
		ID:           uuid.NewString(),
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		TableNumber:  req.TableNumber,
		Items:        items,
		TotalAmount:  total,
		Status:       domain.StatusPending,
	}, nil
}
