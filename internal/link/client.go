package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Client is the daemon's side of the link: it dials the controller,
// reconnects with exponential backoff on failure, dispatches inbound
// `request` envelopes through a Registry, and invokes OnConfigUpdated for
// inbound `config_updated` pushes.
type Client struct {
	URL      string
	DaemonID string
	Registry *Registry
	Logger   *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnConfigUpdated is invoked (if non-nil) whenever the controller
	// pushes a config_updated message.
	OnConfigUpdated func(ctx context.Context, reason string)

	// dial is overridable in tests to avoid a real network dial.
	dial func(ctx context.Context, url string) (*websocket.Conn, error)

	mu   sync.Mutex
	conn *Conn
}

// NewClient constructs a daemon-side link client.
func NewClient(url, daemonID string, registry *Registry, logger *slog.Logger) *Client {
	return &Client{
		URL:        url,
		DaemonID:   daemonID,
		Registry:   registry,
		Logger:     logger,
		MinBackoff: 1 * time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

func (c *Client) dialer(ctx context.Context, url string) (*websocket.Conn, error) {
	if c.dial != nil {
		return c.dial(ctx, url)
	}
	ws, _, err := websocket.Dial(ctx, url, nil)
	return ws, err
}

// Run dials the controller and serves the connection until ctx is
// cancelled, reconnecting with exponential backoff between attempts. Once
// connected, onConnected is invoked with the live Conn so the caller can
// emit daemon_config and a sync snapshot.
func (c *Client) Run(ctx context.Context, onConnected func(ctx context.Context, conn *Conn) error) error {
	backoff := c.MinBackoff
	if backoff <= 0 {
		backoff = 1 * time.Second
	}
	maxBackoff := c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ws, err := c.dialer(ctx, c.URL)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("link dial failed",
					slog.String("event_type", "link_dial_failed"),
					slog.Duration("retry_in", backoff),
					slog.Any("error", err))
			}
			if !sleepContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.MinBackoff, maxBackoff)
			continue
		}

		conn := newConn(ws)
		c.setConn(conn)
		if c.Logger != nil {
			c.Logger.Info("link connected", slog.String("event_type", "link_connected"))
		}

		serveErr := c.serve(ctx, conn, onConnected)
		c.setConn(nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.Logger != nil {
			c.Logger.Warn("link disconnected",
				slog.String("event_type", "link_disconnected"),
				slog.Duration("retry_in", backoff),
				slog.Any("error", serveErr))
		}
		if !sleepContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, c.MinBackoff, maxBackoff)
	}
}

func (c *Client) serve(ctx context.Context, conn *Conn, onConnected func(context.Context, *Conn) error) error {
	if onConnected != nil {
		if err := onConnected(ctx, conn); err != nil {
			return fmt.Errorf("on-connect hook: %w", err)
		}
	}

	for {
		env, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch env.Type {
		case TypeRequest:
			var req RequestPayload
			if err := env.Decode(&req); err != nil {
				continue
			}
			resp := c.dispatch(ctx, req)
			respEnv, err := NewEnvelope(TypeResponse, resp)
			if err != nil {
				continue
			}
			_ = conn.Send(ctx, respEnv)
		case TypeConfigUpdated:
			var payload ConfigUpdatedPayload
			_ = env.Decode(&payload)
			if c.OnConfigUpdated != nil {
				c.OnConfigUpdated(ctx, payload.Reason)
			}
		default:
			if c.Logger != nil {
				c.Logger.Debug("link: ignoring unexpected message type",
					slog.String("type", string(env.Type)))
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, req RequestPayload) ResponsePayload {
	if c.Registry == nil {
		return ResponsePayload{RequestID: req.RequestID, Error: &RPCError{Code: RPCCodeUnknownMethod, Message: "no registry configured"}}
	}
	return c.Registry.Dispatch(ctx, req)
}

// Send pushes an envelope on the currently active connection, returning
// ErrNoConnection if the link is down.
func (c *Client) Send(ctx context.Context, env Envelope) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNoConnection
	}
	return conn.Send(ctx, env)
}

func (c *Client) setConn(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) currentConn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Connected reports whether the client currently has a live connection.
func (c *Client) Connected() bool {
	return c.currentConn() != nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
