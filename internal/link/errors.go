package link

import "errors"

// ErrNoConnection is returned by Server.Call and PushConfigUpdated when no
// daemon is currently connected.
var ErrNoConnection = errors.New("link: no active connection")

// ErrRPCTimeout is returned by Server.Call when no correlated response
// arrives within the configured timeout.
var ErrRPCTimeout = errors.New("link: rpc call timed out")

// ErrClosed is a sentinel for a closed link connection. Conn does not
// return it: Send and Receive after Close return the wrapped websocket
// error.
var ErrClosed = errors.New("link: connection closed")

// CallError wraps an RPCError returned by the remote side of an RPC call
// into a Go error, preserving the stable code for callers that need to
// branch on it (e.g. "unknown_method").
type CallError struct {
	Code    string
	Message string
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}
