package link

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Server is the controller's side of the link: it accepts the daemon's
// inbound websocket connection, routes push messages to registered
// callbacks, and lets the controller issue correlated RPC calls to the
// daemon. Only one daemon connects at a time, so Server tracks a
// single active Conn rather than a connection table.
type Server struct {
	Logger     *slog.Logger
	RPCTimeout time.Duration

	OnDaemonConfig func(DaemonConfigPayload)
	OnDiscEvent    func(DiscEventPayload)
	OnProgress     func(ProgressPayload)
	OnHeartbeat    func(HeartbeatPayload)
	OnSync         func(SyncPayload)

	mu       sync.Mutex
	conn     *Conn
	daemonID string
	pending  map[string]chan ResponsePayload
}

// NewServer constructs a controller-side link server.
func NewServer(logger *slog.Logger, rpcTimeout time.Duration) *Server {
	return &Server{
		Logger:     logger,
		RPCTimeout: rpcTimeout,
		pending:    make(map[string]chan ResponsePayload),
	}
}

// Handler returns the http.HandlerFunc to mount at the well-known link
// path (e.g. "/link"); it upgrades the request to a websocket connection
// and serves it until the peer disconnects or the request context ends.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("link accept failed", slog.Any("error", err))
			}
			return
		}
		conn := newConn(ws)
		s.setConn(conn)
		defer func() {
			s.setConn(nil)
			_ = conn.Close()
		}()

		if err := s.serve(r.Context(), conn); err != nil && s.Logger != nil {
			s.Logger.Info("link connection ended",
				slog.String("event_type", "link_connection_ended"),
				slog.Any("error", err))
		}
	}
}

func (s *Server) serve(ctx context.Context, conn *Conn) error {
	for {
		env, err := conn.Receive(ctx)
		if err != nil {
			return err
		}

		switch env.Type {
		case TypeDaemonConfig:
			var payload DaemonConfigPayload
			if err := env.Decode(&payload); err == nil {
				s.setDaemonID(payload.DaemonID)
				if s.OnDaemonConfig != nil {
					s.OnDaemonConfig(payload)
				}
			}
		case TypeDiscEvent:
			var payload DiscEventPayload
			if err := env.Decode(&payload); err == nil && s.OnDiscEvent != nil {
				s.OnDiscEvent(payload)
			}
		case TypeProgress:
			var payload ProgressPayload
			if err := env.Decode(&payload); err == nil && s.OnProgress != nil {
				s.OnProgress(payload)
			}
		case TypeHeartbeat:
			var payload HeartbeatPayload
			if err := env.Decode(&payload); err == nil && s.OnHeartbeat != nil {
				s.OnHeartbeat(payload)
			}
		case TypeSync:
			var payload SyncPayload
			if err := env.Decode(&payload); err == nil && s.OnSync != nil {
				s.OnSync(payload)
			}
		case TypeResponse:
			var payload ResponsePayload
			if err := env.Decode(&payload); err == nil {
				s.deliver(payload)
			}
		default:
			if s.Logger != nil {
				s.Logger.Debug("link: ignoring unexpected message type", slog.String("type", string(env.Type)))
			}
		}
	}
}

// Call issues an RPC request to the connected daemon and blocks for the
// correlated response, erroring on timeout (default 5s) or if no
// daemon is currently connected.
func (s *Server) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn := s.currentConn()
	if conn == nil {
		return nil, ErrNoConnection
	}

	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	ch := make(chan ResponsePayload, 1)
	s.registerPending(requestID, ch)
	defer s.unregisterPending(requestID)

	env, err := NewEnvelope(TypeRequest, RequestPayload{RequestID: requestID, Method: method, Params: paramsRaw})
	if err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, env); err != nil {
		return nil, err
	}

	timeout := s.RPCTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &CallError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, ErrRPCTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PushConfigUpdated sends a config_updated message to the connected
// daemon.
func (s *Server) PushConfigUpdated(ctx context.Context, reason string) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNoConnection
	}
	env, err := NewEnvelope(TypeConfigUpdated, ConfigUpdatedPayload{Reason: reason})
	if err != nil {
		return err
	}
	return conn.Send(ctx, env)
}

// Connected reports whether a daemon is currently connected.
func (s *Server) Connected() bool {
	return s.currentConn() != nil
}

// DaemonID returns the daemon_id most recently announced via
// daemon_config, or "" if none has connected yet.
func (s *Server) DaemonID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daemonID
}

func (s *Server) deliver(resp ResponsePayload) {
	s.mu.Lock()
	ch, ok := s.pending[resp.RequestID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (s *Server) registerPending(requestID string, ch chan ResponsePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[requestID] = ch
}

func (s *Server) unregisterPending(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, requestID)
}

func (s *Server) setConn(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	if conn == nil {
		s.daemonID = ""
	}
}

func (s *Server) setDaemonID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemonID = id
}

func (s *Server) currentConn() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
