// Package link implements the persistent bidirectional channel between the
// daemon and the controller: a text-framed JSON
// envelope protocol carried over a github.com/coder/websocket connection,
// with push message types (daemon_config, disc_event, progress, heartbeat,
// sync, config_updated) plus a request/response RPC correlated by
// request_id.
//
// The controller runs the listener (Server) and is the RPC caller; the
// daemon dials in (Client) and is the RPC callee, dispatching incoming
// requests through a Registry of compiled-in method handlers.
package link
