package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"wasil/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound frames; location updates are tiny.
	maxFrameSize = 4 << 10
	sendBuffer   = 64
)

// Client is one authenticated socket connection.
type Client struct {
	id       string
	identity types.Identity
	conn     *websocket.Conn
	send     chan []byte
	gw       *Gateway
}

func newClient(gw *Gateway, conn *websocket.Conn, identity types.Identity) *Client {
	return &Client{
		id:       string(types.NewID()),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		gw:       gw,
	}
}

// enqueue hands a marshalled frame to the write pump without blocking; a full
// buffer drops the frame (delivery is best-effort, clients re-fetch on
// reconnect).
func (c *Client) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) sendFrame(f Frame) {
	raw, err := marshalFrame(f)
	if err != nil {
		return
	}
	c.enqueue(raw)
}

func (c *Client) readPump() {
	defer func() {
		c.gw.disconnect(c)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.gw.handleMessage(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
