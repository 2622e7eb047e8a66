package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with the read and write deadlines the
// session stream runs under. Deadlines come from configuration rather than
// being baked in, since they depend on deployment latency more than on the
// protocol.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration
}

// NewConn wraps an upgraded connection.
func NewConn(conn *websocket.Conn, writeTimeout, readTimeout time.Duration) *Conn {
	return &Conn{conn: conn, writeTimeout: writeTimeout, readTimeout: readTimeout}
}

// WriteTyped sends a strongly-typed response payload.
func (c *Conn) WriteTyped(v interface{}) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes the next message into v. The read deadline is
// re-armed on every call, so it acts as an idle timeout.
func (c *Conn) ReadJSON(v interface{}) error {
	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	return c.conn.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
