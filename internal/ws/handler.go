package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"venue-system/internal/auth"
	"venue-system/internal/domain"
)

// Inbound message tags.
const (
	msgJoinRoom       = "join_room"
	msgLeaveRoom      = "leave_room"
	msgPing           = "ping"
	msgAcceptKitchen  = "accept_kitchen_order"
	msgKitchenReady   = "mark_kitchen_ready"
	msgAcceptWaiter   = "accept_waiter_order"
	msgOrderDelivered = "mark_order_delivered"
)

type inbound struct {
	Type    string `json:"type"`
	Room    string `json:"room,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

// Coordinator is the order state-machine surface the handler dispatches
// staff actions to.
type Coordinator interface {
	ClaimForPreparation(ctx context.Context, orderID, staffID string) error
	MarkPrepared(ctx context.Context, orderID string) error
	ClaimForDelivery(ctx context.Context, orderID, staffID string) error
	MarkDelivered(ctx context.Context, orderID string) error
}

type Handler struct {
	verifier auth.Verifier
	registry *Registry
	router   *Router
	coord    Coordinator
	lg       *zap.Logger
}

func NewHandler(verifier auth.Verifier, registry *Registry, router *Router, coord Coordinator, lg *zap.Logger) *Handler {
	return &Handler{verifier: verifier, registry: registry, router: router, coord: coord, lg: lg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.lg.Debug("accept_failed", zap.Error(err))
		return
	}

	ident, err := h.verifier.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		_ = conn.Close(websocket.StatusCode(auth.CloseCode(err)), err.Error())
		return
	}

	client := NewClient(ident, conn)
	h.registry.Add(client)
	h.autoJoin(client)

	client.Send(domain.NewEvent(domain.EventAuthSuccess, "", map[string]any{
		"identity":    ident.ID,
		"name":        ident.Name,
		"role":        ident.Role,
		"is_customer": ident.IsCustomer,
	}))

	ctx := r.Context()
	go client.WritePump(ctx)

	h.lg.Info("client_connected",
		zap.String("conn_id", client.ID),
		zap.String("identity", ident.ID),
		zap.String("role", string(ident.Role)))

	h.readLoop(ctx, conn, client)

	h.router.LeaveAll(client)
	h.registry.Remove(client.ID)
	client.Close()
	_ = conn.Close(websocket.StatusNormalClosure, "")

	h.lg.Info("client_disconnected", zap.String("conn_id", client.ID))
}

func (h *Handler) autoJoin(c *Client) {
	if c.Identity.IsCustomer {
		h.router.Join(domain.CustomerGroup(c.Identity.ID), c)
		return
	}
	if c.Identity.Role != "" {
		h.router.Join(string(c.Identity.Role), c)
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, c *Client) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		h.Dispatch(ctx, c, data)
	}
}

// Dispatch handles one inbound message. Failures are answered with a
// tagged error event; they never terminate the connection.
func (h *Handler) Dispatch(ctx context.Context, c *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "malformed message")
		return
	}

	switch msg.Type {
	case msgJoinRoom:
		if msg.Room == "" {
			h.sendError(c, "room is required")
			return
		}
		h.router.Join(msg.Room, c)
		h.sendSuccess(c, msg.Type, "")
	case msgLeaveRoom:
		if msg.Room == "" {
			h.sendError(c, "room is required")
			return
		}
		h.router.Leave(msg.Room, c)
		h.sendSuccess(c, msg.Type, "")
	case msgPing:
		c.Send(domain.NewEvent(domain.EventPong, "", map[string]any{
			"time": time.Now().UTC(),
		}))
	case msgAcceptKitchen:
		h.orderAction(ctx, c, msg, domain.RoleKitchen, func() error {
			return h.coord.ClaimForPreparation(ctx, msg.OrderID, c.Identity.ID)
		})
	case msgKitchenReady:
		h.orderAction(ctx, c, msg, domain.RoleKitchen, func() error {
			return h.coord.MarkPrepared(ctx, msg.OrderID)
		})
	case msgAcceptWaiter:
		h.orderAction(ctx, c, msg, domain.RoleFloor, func() error {
			return h.coord.ClaimForDelivery(ctx, msg.OrderID, c.Identity.ID)
		})
	case msgOrderDelivered:
		h.orderAction(ctx, c, msg, domain.RoleFloor, func() error {
			return h.coord.MarkDelivered(ctx, msg.OrderID)
		})
	default:
		h.sendError(c, "unknown message type")
	}
}

func (h *Handler) orderAction(ctx context.Context, c *Client, msg inbound, need domain.Role, op func() error) {
	if c.Identity.IsCustomer || c.Identity.Role != need {
		h.sendError(c, "action not permitted for this role")
		return
	}
	if msg.OrderID == "" {
		h.sendError(c, "orderId is required")
		return
	}
	if err := op(); err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.sendSuccess(c, msg.Type, msg.OrderID)
}

func (h *Handler) sendError(c *Client, message string) {
	c.Send(domain.NewEvent(domain.EventError, "", map[string]any{"message": message}))
}

func (h *Handler) sendSuccess(c *Client, action, orderID string) {
	c.Send(domain.NewEvent(action+"_success", orderID, nil))
}

// RunHeartbeat pushes a heartbeat event to every live connection on a
// fixed interval until the context is done.
func (h *Handler) RunHeartbeat(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ev := domain.NewEvent(domain.EventHeartbeat, "", nil)
			h.registry.Each(func(c *Client) { c.Send(ev) })
		}
	}
}
