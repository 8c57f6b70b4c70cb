package relay

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// Client is one live websocket connection tracked by the registry.
//
// The accountID, originURL, and alive fields are owned by the registry
// goroutine: they are written only while handling registry commands. A client
// with an empty accountID is connected but inert; it cannot receive fan-out
// until it subscribes.
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	writer *clientWriter

	accountID string
	originURL string
	alive     bool
}

// NewClient wraps an accepted websocket connection. The heartbeat callback is
// invoked from the connection's read loop whenever a pong control frame
// arrives; it must not block.
func NewClient(conn *websocket.Conn, clock clockwork.Clock, heartbeat func(*Client)) *Client {
	c := &Client{
		id:     uuid.New(),
		conn:   conn,
		writer: newClientWriter(conn, clock),
		alive:  true,
	}
	conn.SetPongHandler(func(string) error {
		heartbeat(c)
		return nil
	})
	return c
}

// ID returns the connection's identity, used for registry uniqueness and logs.
func (c *Client) ID() string {
	return c.id.String()
}

// Writable reports whether the connection can still accept frames.
func (c *Client) Writable() bool {
	return c.writer.open()
}

// Enqueue hands a data frame to the connection's writer without blocking.
// Returns false when the writer is closed or the client is too slow to keep
// up with its buffer.
func (c *Client) Enqueue(frame []byte) bool {
	return c.writer.trySend(frame)
}

// Close tears down the transport. Safe to call more than once and safe to
// call concurrently with registry eviction.
func (c *Client) Close() {
	c.writer.stop()
}
