// Package gateway is the realtime distribution layer: it authenticates socket
// connections, manages room membership, rate-limits inbound frames, and fans
// domain events out to the customer, driver and operations audiences.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wasil/internal/auth"
	"wasil/internal/config"
	"wasil/internal/events"
	"wasil/internal/modules/order"
	"wasil/internal/types"
)

const (
	classDefault  = "default"
	classLocation = "location"
)

// Socket error codes sent in typed error frames.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
	CodeNotFound     = "NOT_FOUND"
	CodeBadFrame     = "BAD_FRAME"
	CodeUnknownEvent = "UNKNOWN_EVENT"
)

// DriverPort is the driver-service slice the gateway persists through. Both
// calls are best-effort from the socket's point of view.
type DriverPort interface {
	UpdateLocation(ctx context.Context, id types.ID, p types.Point) error
	SetAvailability(ctx context.Context, id types.ID, available bool) error
}

// OrderAccess answers "may this identity see this order", reusing the
// pipeline's own view authorization.
type OrderAccess interface {
	Get(ctx context.Context, id types.ID, viewer types.Identity) (*order.Order, error)
}

type Gateway struct {
	hub      *Hub
	verifier auth.Verifier
	drivers  DriverPort
	orders   OrderAccess
	limiter  *Limiter
	cfg      config.SocketConfig
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func New(verifier auth.Verifier, drivers DriverPort, orders OrderAccess, cfg config.SocketConfig, log *logrus.Logger) *Gateway {
	return &Gateway{
		hub:      NewHub(),
		verifier: verifier,
		drivers:  drivers,
		orders:   orders,
		limiter:  NewLimiter(cfg.Window),
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run owns the limiter sweep until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	g.limiter.Run(ctx, g.cfg.SweepInterval)
}

// HandleWS upgrades the connection, verifies the bearer token, and joins the
// identity's standing rooms. A missing or invalid token gets one typed error
// frame and an immediate disconnect.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	identity, err := g.verifier.Verify(bearerToken(r))
	if err != nil {
		g.reject(conn, CodeUnauthorized, "missing or invalid token")
		return
	}

	c := newClient(g, conn, identity)
	g.hub.Join(UserRoom(identity.ID), c)
	switch identity.Role {
	case types.RoleDriver:
		g.hub.Join(DriverRoom(identity.ID), c)
	case types.RoleAdmin:
		g.hub.Join(RoomAdmins, c)
		g.hub.Join(RoomAdminOrders, c)
	}

	g.log.WithFields(logrus.Fields{"conn": c.id, "user": identity.ID, "role": identity.Role}).Debug("socket connected")
	go c.writePump()
	go c.readPump()
}

// Register subscribes the gateway's fan-out to the event bus.
func (g *Gateway) Register(bus *events.Bus) {
	for _, name := range []events.Name{
		events.OrderCreatedName,
		events.OrderStatusChangedName,
		events.DriverAssignedName,
		events.OrderCancelledName,
	} {
		bus.Subscribe(name, g.onEvent)
	}
}

// onEvent maps one domain event to its rooms and frame. Fan-out is at most
// once per room; delivery is not guaranteed.
func (g *Gateway) onEvent(_ context.Context, e events.Event) error {
	rooms, frame := routeEvent(e)
	if len(rooms) == 0 {
		return nil
	}
	g.hub.Broadcast(rooms, frame)
	return nil
}

func routeEvent(e events.Event) ([]string, Frame) {
	switch ev := e.(type) {
	case events.OrderCreated:
		return []string{UserRoom(ev.Order.UserID), RoomAdminOrders},
			Frame{Event: "order:created", Data: ev}
	case events.OrderStatusChanged:
		rooms := []string{UserRoom(ev.Order.UserID), RoomAdmins, OrderRoom(ev.Order.OrderID)}
		if ev.Order.DriverID != "" {
			rooms = append(rooms, DriverRoom(ev.Order.DriverID))
		}
		name := "order:status_changed"
		if ev.To == string(order.StatusDelivered) {
			name = "order:delivered"
		}
		return rooms, Frame{Event: name, Data: ev}
	case events.DriverAssigned:
		return []string{DriverRoom(ev.DriverID), UserRoom(ev.Order.UserID), RoomAdmins},
			Frame{Event: "order:assigned", Data: ev}
	case events.OrderCancelled:
		rooms := []string{UserRoom(ev.Order.UserID), RoomAdmins}
		if ev.Order.DriverID != "" {
			rooms = append(rooms, DriverRoom(ev.Order.DriverID))
		}
		return rooms, Frame{Event: "order:cancelled", Data: ev}
	}
	return nil, Frame{}
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleMessage processes one inbound frame. Errors go back to the caller as
// typed frames; the connection stays open for everything except auth failure
// at handshake time.
func (g *Gateway) handleMessage(c *Client, raw []byte) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendFrame(errorFrame(CodeBadFrame, "malformed frame"))
		return
	}

	class, budget := classDefault, g.cfg.Budget
	if f.Event == "driver:location" {
		class, budget = classLocation, g.cfg.LocationBudget
	}
	if !g.limiter.Allow(c.id+":"+class, budget) {
		c.sendFrame(errorFrame(CodeRateLimited, "message budget exceeded"))
		return
	}

	ctx := context.Background()
	switch f.Event {
	case "join:order":
		g.handleJoinOrder(ctx, c, f.Data)
	case "driver:location":
		g.handleDriverLocation(ctx, c, f.Data)
	case "driver:status":
		g.handleDriverStatus(ctx, c, f.Data)
	default:
		c.sendFrame(errorFrame(CodeUnknownEvent, "unknown event "+f.Event))
	}
}

func (g *Gateway) handleJoinOrder(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		OrderID types.ID `json:"order_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.OrderID == "" {
		c.sendFrame(errorFrame(CodeBadFrame, "order_id required"))
		return
	}

	// Only the owner, the assigned driver, or an admin may watch an order.
	if _, err := g.orders.Get(ctx, req.OrderID, c.identity); err != nil {
		switch {
		case errors.Is(err, order.ErrForbidden):
			c.sendFrame(errorFrame(CodeUnauthorized, "not your order"))
		case errors.Is(err, order.ErrNotFound):
			c.sendFrame(errorFrame(CodeNotFound, "order not found"))
		default:
			g.log.WithField("order", req.OrderID).WithError(err).Error("join:order lookup failed")
			c.sendFrame(errorFrame(CodeBadFrame, "join failed"))
		}
		return
	}

	g.hub.Join(OrderRoom(req.OrderID), c)
	c.sendFrame(Frame{Event: "joined:order", Data: map[string]any{"order_id": req.OrderID}})
}

func (g *Gateway) handleDriverLocation(ctx context.Context, c *Client, data json.RawMessage) {
	if c.identity.Role != types.RoleDriver {
		c.sendFrame(errorFrame(CodeUnauthorized, "drivers only"))
		return
	}
	var req struct {
		Lat     float64  `json:"lat"`
		Lng     float64  `json:"lng"`
		Heading *float64 `json:"heading,omitempty"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendFrame(errorFrame(CodeBadFrame, "lat/lng required"))
		return
	}

	g.hub.Broadcast([]string{RoomAdminOrders}, Frame{
		Event: "driver:location_updated",
		Data: map[string]any{
			"driver_id": c.identity.ID,
			"lat":       req.Lat,
			"lng":       req.Lng,
			"heading":   req.Heading,
			"at":        time.Now(),
		},
	})

	// Persistence is best-effort; a write failure must not fail the socket call.
	if err := g.drivers.UpdateLocation(ctx, c.identity.ID, types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		g.log.WithField("driver", c.identity.ID).WithError(err).Warn("location persist failed")
	}
}

func (g *Gateway) handleDriverStatus(ctx context.Context, c *Client, data json.RawMessage) {
	if c.identity.Role != types.RoleDriver {
		c.sendFrame(errorFrame(CodeUnauthorized, "drivers only"))
		return
	}
	var req struct {
		IsAvailable bool `json:"is_available"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendFrame(errorFrame(CodeBadFrame, "is_available required"))
		return
	}

	g.hub.Broadcast([]string{RoomAdminOrders}, Frame{
		Event: "driver:status_changed",
		Data: map[string]any{
			"driver_id":    c.identity.ID,
			"is_available": req.IsAvailable,
		},
	})

	if err := g.drivers.SetAvailability(ctx, c.identity.ID, req.IsAvailable); err != nil {
		g.log.WithField("driver", c.identity.ID).WithError(err).Warn("availability persist failed")
	}
}

func (g *Gateway) disconnect(c *Client) {
	g.hub.LeaveAll(c)
	close(c.send)
}

// reject writes one typed error frame on a fresh connection and closes it.
func (g *Gateway) reject(conn *websocket.Conn, code, msg string) {
	raw, err := marshalFrame(errorFrame(code, msg))
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, raw)
	}
	_ = conn.Close()
}

func errorFrame(code, msg string) Frame {
	return Frame{Event: "error", Data: ErrorData{Code: code, Message: msg}}
}

func marshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
