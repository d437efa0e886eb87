package link

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc answers one RPC method call. It returns a value JSON-
// marshalable as the response's result, or an error that becomes a
// handler_error response.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Registry is the daemon's compiled-in RPC method table. It is populated
// from a fixed table at daemon startup rather than by dynamic registration
// over the wire, so Register is expected to be called before Dispatch is
// ever invoked, but remains safe to call concurrently with Dispatch since
// a handler can itself register follow-up methods in tests.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry constructs an empty method registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds method to handler, replacing any existing binding.
func (r *Registry) Register(method string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// Dispatch resolves req.Method and invokes its handler, translating the
// outcome into a correlated ResponsePayload. An unregistered method
// produces RPCCodeUnknownMethod; a handler error or panic produces
// RPCCodeHandlerError.
func (r *Registry) Dispatch(ctx context.Context, req RequestPayload) ResponsePayload {
	r.mu.RLock()
	handler, ok := r.handlers[req.Method]
	r.mu.RUnlock()

	if !ok {
		return ResponsePayload{
			RequestID: req.RequestID,
			Error:     &RPCError{Code: RPCCodeUnknownMethod, Message: fmt.Sprintf("no handler registered for method %q", req.Method)},
		}
	}

	result, err := invokeSafely(ctx, handler, req.Params)
	if err != nil {
		return ResponsePayload{
			RequestID: req.RequestID,
			Error:     &RPCError{Code: RPCCodeHandlerError, Message: err.Error()},
		}
	}

	if result == nil {
		return ResponsePayload{RequestID: req.RequestID}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return ResponsePayload{
			RequestID: req.RequestID,
			Error:     &RPCError{Code: RPCCodeHandlerError, Message: fmt.Sprintf("marshal result: %v", err)},
		}
	}
	return ResponsePayload{RequestID: req.RequestID, Result: raw}
}

func invokeSafely(ctx context.Context, handler HandlerFunc, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, params)
}
