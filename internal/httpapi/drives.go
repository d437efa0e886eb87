package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrDaemonOffline is returned by drive endpoints when no daemon link is
// connected.
var ErrDaemonOffline = errors.New("daemon is not connected")

// DriveSource is the subset of the persistent-link server the drive
// endpoints need: drive state lives on the daemon, so the controller
// proxies these reads over the link's RPC channel.
type DriveSource interface {
	Connected() bool
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	PushConfigUpdated(ctx context.Context, reason string) error
}

// listDrives proxies the daemon's get_drives RPC so browser clients can
// render drive state without a second connection to the daemon.
func (a *API) listDrives(w http.ResponseWriter, r *http.Request) {
	a.proxyDriveRPC(w, r, "get_drives")
}

// driveStatus proxies the daemon's get_drive_status RPC: current state,
// mounted volume, fingerprint, and active task progress.
func (a *API) driveStatus(w http.ResponseWriter, r *http.Request) {
	a.proxyDriveRPC(w, r, "get_drive_status")
}

// notifyConfigUpdated pushes a config_updated message over the link; the
// daemon responds by re-reading and revalidating its local configuration
// file.
func (a *API) notifyConfigUpdated(w http.ResponseWriter, r *http.Request) {
	if a.Drives == nil || !a.Drives.Connected() {
		writeError(w, http.StatusServiceUnavailable, ErrDaemonOffline)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = decodeJSONBody(r, &req)
	if err := a.Drives.PushConfigUpdated(r.Context(), req.Reason); err != nil {
		a.logError("notify_config_updated_failed", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) proxyDriveRPC(w http.ResponseWriter, r *http.Request, method string) {
	if a.Drives == nil || !a.Drives.Connected() {
		writeError(w, http.StatusServiceUnavailable, ErrDaemonOffline)
		return
	}
	result, err := a.Drives.Call(r.Context(), method, nil)
	if err != nil {
		a.logError(method+"_failed", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(result))
}
