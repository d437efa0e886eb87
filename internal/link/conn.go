package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Conn wraps one websocket connection, framing link envelopes as JSON text
// messages. Writes are serialized: both
// the outbound RPC path and the periodic heartbeat/progress push path may
// call Send concurrently from different goroutines.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send writes one envelope to the peer.
func (c *Conn) Send(ctx context.Context, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		return fmt.Errorf("link: write envelope: %w", err)
	}
	return nil
}

// Receive blocks for the next envelope from the peer.
func (c *Conn) Receive(ctx context.Context) (Envelope, error) {
	var env Envelope
	if err := wsjson.Read(ctx, c.ws, &env); err != nil {
		return Envelope{}, fmt.Errorf("link: read envelope: %w", err)
	}
	return env, nil
}

// Close terminates the connection with a normal closure status.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "link closed")
}

// CloseError terminates the connection reporting an internal error,
// appropriate when the read/serve loop is abandoning the connection due to
// a protocol or application failure rather than a clean shutdown.
func (c *Conn) CloseError(reason string) error {
	return c.ws.Close(websocket.StatusInternalError, reason)
}
