package link

import "encoding/json"

// MessageType discriminates the envelope's payload.
type MessageType string

const (
	TypeDaemonConfig  MessageType = "daemon_config"
	TypeDiscEvent     MessageType = "disc_event"
	TypeProgress      MessageType = "progress"
	TypeHeartbeat     MessageType = "heartbeat"
	TypeSync          MessageType = "sync"
	TypeRequest       MessageType = "request"
	TypeResponse      MessageType = "response"
	TypeConfigUpdated MessageType = "config_updated"
)

// Envelope is the wire shape for every message on the link: a type
// discriminator plus a type-specific payload, deferred as raw JSON so the
// transport layer never needs to know the closed set of payload shapes.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload and wraps it with its discriminator.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// Decode unmarshals the envelope's payload into dest.
func (e Envelope) Decode(dest any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dest)
}

// DaemonConfigPayload is the daemon's initial registration.
type DaemonConfigPayload struct {
	DaemonID     string   `json:"daemon_id"`
	Device       string   `json:"device"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// DiscEventKind is the disc_event payload's event discriminator.
type DiscEventKind string

const (
	DiscEventInserted DiscEventKind = "inserted"
	DiscEventEjected  DiscEventKind = "ejected"
)

// DiscEventPayload is broadcast on disc insert/eject.
type DiscEventPayload struct {
	Device string        `json:"device"`
	Event  DiscEventKind `json:"event"`
	Volume string        `json:"volume,omitempty"`
	Medium string        `json:"medium,omitempty"`
}

// ProgressPayload streams driver progress.
type ProgressPayload struct {
	TaskID     string  `json:"task_id"`
	Percent    float64 `json:"percent"`
	Stage      string  `json:"stage,omitempty"`
	Message    string  `json:"message,omitempty"`
	ETASeconds float64 `json:"eta_seconds,omitempty"`
	Bytes      int64   `json:"bytes,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
}

// HeartbeatPayload is the daemon's periodic liveness signal.
type HeartbeatPayload struct {
	DaemonID      string `json:"daemon_id"`
	QueueDepth    int    `json:"queue_depth"`
	CurrentTaskID string `json:"current_task_id,omitempty"`
	Paused        bool   `json:"paused"`
}

// SyncPayload is the full state snapshot emitted on reconnect.
type SyncPayload struct {
	DaemonID      string  `json:"daemon_id"`
	DriveState    string  `json:"drive_state"`
	CurrentTaskID string  `json:"current_task_id,omitempty"`
	Percent       float64 `json:"percent,omitempty"`
	Paused        bool    `json:"paused"`
	QueueDepth    int     `json:"queue_depth"`
}

// RequestPayload is an RPC call, controller → daemon.
type RequestPayload struct {
	RequestID string          `json:"request_id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// RPCError is the stable error shape carried in a failed response.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponsePayload is the daemon's correlated reply to a RequestPayload.
type ResponsePayload struct {
	RequestID string          `json:"request_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *RPCError       `json:"error,omitempty"`
}

// ConfigUpdatedPayload tells the daemon that configuration changed; the
// daemon re-reads its local configuration file.
type ConfigUpdatedPayload struct {
	Reason string `json:"reason,omitempty"`
}

const (
	// RPCCodeUnknownMethod is returned when no handler is registered for
	// a request's method name.
	RPCCodeUnknownMethod = "unknown_method"
	// RPCCodeHandlerError is returned when a registered handler returns
	// an error or panics.
	RPCCodeHandlerError = "handler_error"
)
