package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wasil/internal/config"
	"wasil/internal/events"
	"wasil/internal/modules/order"
	"wasil/internal/types"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (types.Identity, error) {
	switch token {
	case "driver-token":
		return types.Identity{ID: "d1", Role: types.RoleDriver}, nil
	case "user-token":
		return types.Identity{ID: "u1", Role: types.RoleCustomer}, nil
	}
	return types.Identity{}, errors.New("invalid token")
}

type fakeDrivers struct {
	locations      []types.Point
	availabilities []bool
}

func (f *fakeDrivers) UpdateLocation(_ context.Context, _ types.ID, p types.Point) error {
	f.locations = append(f.locations, p)
	return nil
}

func (f *fakeDrivers) SetAvailability(_ context.Context, _ types.ID, v bool) error {
	f.availabilities = append(f.availabilities, v)
	return nil
}

type fakeOrders struct {
	orders map[types.ID]*order.Order
}

func (f *fakeOrders) Get(_ context.Context, id types.ID, viewer types.Identity) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if viewer.IsAdmin() || viewer.ID == o.UserID || o.AssignedTo(viewer.ID) {
		return o, nil
	}
	return nil, order.ErrForbidden
}

func newTestGateway(drivers *fakeDrivers, orders *fakeOrders) *Gateway {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.SocketConfig{
		Budget:         3,
		Window:         time.Minute,
		LocationBudget: 3,
		SweepInterval:  time.Minute,
	}
	if orders == nil {
		orders = &fakeOrders{orders: make(map[types.ID]*order.Order)}
	}
	return New(fakeVerifier{}, drivers, orders, cfg, log)
}

func connect(g *Gateway, identity types.Identity) *Client {
	c := &Client{
		id:       string(types.NewID()),
		identity: identity,
		send:     make(chan []byte, 16),
		gw:       g,
	}
	g.hub.Join(UserRoom(identity.ID), c)
	if identity.Role == types.RoleDriver {
		g.hub.Join(DriverRoom(identity.ID), c)
	}
	if identity.Role == types.RoleAdmin {
		g.hub.Join(RoomAdmins, c)
		g.hub.Join(RoomAdminOrders, c)
	}
	return c
}

func inbound(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(map[string]json.RawMessage{
		"event": json.RawMessage(`"` + event + `"`),
		"data":  raw,
	})
	return b
}

func recvError(t *testing.T, c *Client) ErrorData {
	t.Helper()
	select {
	case raw := <-c.send:
		var f struct {
			Event string    `json:"event"`
			Data  ErrorData `json:"data"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if f.Event != "error" {
			t.Fatalf("expected error frame, got %q", f.Event)
		}
		return f.Data
	default:
		t.Fatal("no frame waiting")
		return ErrorData{}
	}
}

func TestRouteEvent(t *testing.T) {
	ref := events.OrderRef{OrderID: "o1", UserID: "u1", DriverID: "d1", Status: "on_the_way"}

	cases := []struct {
		name      string
		event     events.Event
		wantRooms []string
		wantName  string
	}{
		{
			name:      "created goes to owner and ops",
			event:     events.OrderCreated{Order: events.OrderRef{OrderID: "o1", UserID: "u1"}},
			wantRooms: []string{"user_u1", RoomAdminOrders},
			wantName:  "order:created",
		},
		{
			name:      "status change fans out to every audience",
			event:     events.OrderStatusChanged{Order: ref, From: "picked_up", To: "on_the_way"},
			wantRooms: []string{"user_u1", RoomAdmins, "order_o1", "driver_d1"},
			wantName:  "order:status_changed",
		},
		{
			name:      "delivery gets its own event name",
			event:     events.OrderStatusChanged{Order: ref, From: "on_the_way", To: "delivered"},
			wantRooms: []string{"user_u1", RoomAdmins, "order_o1", "driver_d1"},
			wantName:  "order:delivered",
		},
		{
			name:      "assignment notifies the driver",
			event:     events.DriverAssigned{Order: ref, DriverID: "d1"},
			wantRooms: []string{"driver_d1", "user_u1", RoomAdmins},
			wantName:  "order:assigned",
		},
		{
			name:      "cancellation skips the driver room when unassigned",
			event:     events.OrderCancelled{Order: events.OrderRef{OrderID: "o1", UserID: "u1"}},
			wantRooms: []string{"user_u1", RoomAdmins},
			wantName:  "order:cancelled",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rooms, frame := routeEvent(tc.event)
			if frame.Event != tc.wantName {
				t.Errorf("event name = %q, want %q", frame.Event, tc.wantName)
			}
			if len(rooms) != len(tc.wantRooms) {
				t.Fatalf("rooms = %v, want %v", rooms, tc.wantRooms)
			}
			for i, r := range tc.wantRooms {
				if rooms[i] != r {
					t.Errorf("room %d = %q, want %q", i, rooms[i], r)
				}
			}
		})
	}
}

func TestHandleMessage_RateLimit(t *testing.T) {
	g := newTestGateway(&fakeDrivers{}, nil)
	c := connect(g, types.Identity{ID: "u1", Role: types.RoleCustomer})

	for i := 0; i < 3; i++ {
		g.handleMessage(c, inbound("nonsense", nil))
		if got := recvError(t, c); got.Code != CodeUnknownEvent {
			t.Fatalf("call %d: code = %s, want %s", i+1, got.Code, CodeUnknownEvent)
		}
	}

	g.handleMessage(c, inbound("nonsense", nil))
	if got := recvError(t, c); got.Code != CodeRateLimited {
		t.Errorf("over-budget code = %s, want %s", got.Code, CodeRateLimited)
	}

	// The connection survives: it is still a member of its user room.
	if g.hub.roomSize(UserRoom("u1")) != 1 {
		t.Error("rate-limited client must stay connected")
	}
}

func TestHandleMessage_JoinOrder(t *testing.T) {
	orders := &fakeOrders{orders: map[types.ID]*order.Order{
		"o1": {ID: "o1", UserID: "u1"},
	}}
	g := newTestGateway(&fakeDrivers{}, orders)

	owner := connect(g, types.Identity{ID: "u1", Role: types.RoleCustomer})
	g.handleMessage(owner, inbound("join:order", map[string]string{"order_id": "o1"}))
	select {
	case raw := <-owner.send:
		var f Frame
		_ = json.Unmarshal(raw, &f)
		if f.Event != "joined:order" {
			t.Fatalf("expected joined:order, got %q", f.Event)
		}
	default:
		t.Fatal("no ack frame")
	}
	if g.hub.roomSize(OrderRoom("o1")) != 1 {
		t.Error("owner must be in the order room")
	}

	stranger := connect(g, types.Identity{ID: "u2", Role: types.RoleCustomer})
	g.handleMessage(stranger, inbound("join:order", map[string]string{"order_id": "o1"}))
	if got := recvError(t, stranger); got.Code != CodeUnauthorized {
		t.Errorf("stranger join code = %s, want %s", got.Code, CodeUnauthorized)
	}
	if g.hub.roomSize(OrderRoom("o1")) != 1 {
		t.Error("stranger must not be in the order room")
	}

	g.handleMessage(owner, inbound("join:order", map[string]string{"order_id": "ghost"}))
	if got := recvError(t, owner); got.Code != CodeNotFound {
		t.Errorf("missing order code = %s, want %s", got.Code, CodeNotFound)
	}
}

func TestHandleMessage_DriverLocation(t *testing.T) {
	drivers := &fakeDrivers{}
	g := newTestGateway(drivers, nil)

	admin := connect(g, types.Identity{ID: "a1", Role: types.RoleAdmin})
	d := connect(g, types.Identity{ID: "d1", Role: types.RoleDriver})

	g.handleMessage(d, inbound("driver:location", map[string]float64{"lat": 15.37, "lng": 44.19}))

	select {
	case raw := <-admin.send:
		var f Frame
		_ = json.Unmarshal(raw, &f)
		if f.Event != "driver:location_updated" {
			t.Errorf("admin frame = %q, want driver:location_updated", f.Event)
		}
	default:
		t.Error("ops room must receive the location frame")
	}

	if len(drivers.locations) != 1 || drivers.locations[0].Lat != 15.37 {
		t.Errorf("location not persisted: %v", drivers.locations)
	}

	// Customers cannot publish locations.
	u := connect(g, types.Identity{ID: "u1", Role: types.RoleCustomer})
	g.handleMessage(u, inbound("driver:location", map[string]float64{"lat": 1, "lng": 1}))
	if got := recvError(t, u); got.Code != CodeUnauthorized {
		t.Errorf("customer location code = %s, want %s", got.Code, CodeUnauthorized)
	}
}

func TestHandleMessage_DriverStatus(t *testing.T) {
	drivers := &fakeDrivers{}
	g := newTestGateway(drivers, nil)
	d := connect(g, types.Identity{ID: "d1", Role: types.RoleDriver})

	g.handleMessage(d, inbound("driver:status", map[string]bool{"is_available": true}))
	if len(drivers.availabilities) != 1 || !drivers.availabilities[0] {
		t.Errorf("availability not persisted: %v", drivers.availabilities)
	}
}

func TestHandleMessage_MalformedFrame(t *testing.T) {
	g := newTestGateway(&fakeDrivers{}, nil)
	c := connect(g, types.Identity{ID: "u1", Role: types.RoleCustomer})

	g.handleMessage(c, []byte("{not json"))
	if got := recvError(t, c); got.Code != CodeBadFrame {
		t.Errorf("malformed frame code = %s, want %s", got.Code, CodeBadFrame)
	}
}

func TestOnEvent_DeliversToJoinedRooms(t *testing.T) {
	g := newTestGateway(&fakeDrivers{}, nil)
	u := connect(g, types.Identity{ID: "u1", Role: types.RoleCustomer})

	err := g.onEvent(context.Background(), events.OrderCreated{
		Order: events.OrderRef{OrderID: "o1", UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("onEvent: %v", err)
	}

	select {
	case raw := <-u.send:
		var f Frame
		_ = json.Unmarshal(raw, &f)
		if f.Event != "order:created" {
			t.Errorf("frame = %q, want order:created", f.Event)
		}
	default:
		t.Error("owner must receive the created frame")
	}
}

func TestHandleWS_RejectsMissingToken(t *testing.T) {
	g := newTestGateway(&fakeDrivers{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var f struct {
		Event string    `json:"event"`
		Data  ErrorData `json:"data"`
	}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if f.Event != "error" || f.Data.Code != CodeUnauthorized {
		t.Errorf("frame = %+v, want error/%s", f, CodeUnauthorized)
	}

	// The server closes right after the error frame.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection must be closed after the rejection frame")
	}
}

func TestHandleWS_AuthorizedJoinsRooms(t *testing.T) {
	g := newTestGateway(&fakeDrivers{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	defer srv.Close()

	header := http.Header{"Authorization": []string{"Bearer driver-token"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Room joins complete just after the handshake response; poll briefly.
	deadline := time.Now().Add(time.Second)
	for g.hub.roomSize(DriverRoom("d1")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if g.hub.roomSize(UserRoom("d1")) != 1 || g.hub.roomSize(DriverRoom("d1")) != 1 {
		t.Error("driver must be joined to its user and driver rooms")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := bearerToken(r); got != "abc" {
		t.Errorf("header token = %q, want abc", got)
	}

	r = httptest.NewRequest("GET", "/ws?token=xyz", nil)
	if got := bearerToken(r); got != "xyz" {
		t.Errorf("query token = %q, want xyz", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if got := bearerToken(r); got != "" {
		t.Errorf("no token = %q, want empty", got)
	}
}
