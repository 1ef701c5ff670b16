// Package signaling is the client side of the relay websocket protocol.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	outgoingBuffer = 64
	incomingBuffer = 64
)

// ErrClosed is returned by Emit after Close or after the connection dropped.
var ErrClosed = errors.New("signaling: connection closed")

// Client manages one websocket connection to the relay.
type Client struct {
	conn     *websocket.Conn
	incoming chan models.Envelope
	outgoing chan []byte

	done      chan struct{}
	closeOnce sync.Once

	log *slog.Logger
}

// Dialer opens relay connections to a fixed URL.
type Dialer struct {
	URL    string
	Logger *slog.Logger
}

// Dial connects to the relay. The context bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context) (*Client, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan models.Envelope, incomingBuffer),
		outgoing: make(chan []byte, outgoingBuffer),
		done:     make(chan struct{}),
		log:      logger,
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump reads frames until the connection fails. The incoming channel is
// closed when it returns, which is how callers learn the transport is gone.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("signaling read", slog.Any(logging.Error, err))
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("failed to parse frame", slog.Any(logging.Error, err))
			continue
		}

		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("signaling write", slog.Any(logging.Error, err))
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before Close, such as a final leave-room.
func (c *Client) drain() {
	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Emit queues one event for the relay.
func (c *Client) Emit(event string, data any) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel of frames from the relay. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan models.Envelope {
	return c.incoming
}

// Done is closed once the client is shut down for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close flushes pending frames, sends a close frame and releases the
// connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}
