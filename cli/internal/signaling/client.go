package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/warpcall/cli/internal/dns"
	"github.com/BioHazard786/warpcall/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec
	resolver  *dns.Resolver

	incoming chan *protocol.Envelope
	outgoing chan *protocol.Envelope
	done     chan struct{}

	closeOnce sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string, codec protocol.Codec) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		resolver:  dns.NewResolver(),
		incoming:  make(chan *protocol.Envelope, 64),
		outgoing:  make(chan *protocol.Envelope, 64),
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Use our DNS lookup with public fallback
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = c.resolver.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads envelopes from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("signaling read", "err", err)
			}
			return
		}

		env, err := protocol.Decode(c.codec, data)
		if err != nil {
			slog.Warn("dropping malformed envelope from relay", "err", err)
			continue
		}

		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

// writePump writes envelopes to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

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
		case env := <-c.outgoing:
			data, err := c.codec.Marshal(env)
			if err != nil {
				slog.Error("encode envelope", "type", env.Type, "err", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues env for the relay.
func (c *Client) Send(env *protocol.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel for receiving envelopes. It is closed when the
// connection drops.
func (c *Client) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

// Done is closed once the client is closing.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
