package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultReadLimit is the largest frame accepted from a participant.
	DefaultReadLimit = 64 * 1024 // 64 KB - enough for SDP with several media sections

	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	hub *Hub

	// conn is nil for clients created in tests.
	conn  *websocket.Conn
	addr  string
	codec protocol.Codec

	// id is assigned by the Connection Registry and only touched by the hub
	// goroutine.
	id protocol.ClientID

	// send is the outbound queue drained by WritePump. Only the hub writes to
	// or closes it.
	send   chan *protocol.Envelope
	closed bool

	readLimit int64
}

// NewClient wraps conn. The client is not known to the hub until it is
// passed to Hub.RegisterClient.
func NewClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec, sendBuffer int, readLimit int64) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	if codec == nil {
		codec = protocol.JSON
	}
	c := &Client{
		hub:       hub,
		conn:      conn,
		codec:     codec,
		send:      make(chan *protocol.Envelope, sendBuffer),
		readLimit: readLimit,
	}
	if conn != nil {
		c.addr = conn.RemoteAddr().String()
	}
	return c
}

// ReadPump pumps frames from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Warn("read error", "addr", c.addr, "err", err)
			}
			return
		}

		env, err := protocol.Decode(c.codec, data)
		if !c.hub.Deliver(&Inbound{Client: c, Envelope: env, Err: err}) {
			return
		}
	}
}

// WritePump pumps envelopes from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	// When this function exits, stop the ticker and close the connection
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := c.codec.Marshal(env)
			if err != nil {
				slog.Error("encode envelope", "addr", c.addr, "type", env.Type, "err", err)
				continue
			}
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				slog.Debug("write error", "addr", c.addr, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
