package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const daemonSample = `# Amphigory daemon configuration
# ===============================
# This file lives on the host that owns the optical drive and holds all of
# the daemon's settings; the controller does not push configuration to the
# daemon.

daemon_id = ""                              # generated and persisted on first run; leave blank
task_dir = "~/.local/share/amphigory/tasks" # shared-filesystem task directory (must match the controller's)
optical_drive = "/dev/sr0"                  # optical drive device path
link_url = "ws://controller.local:7488/link"

makemkv_hints = [
  "/usr/bin/makemkvcon",
  "/usr/local/bin/makemkvcon",
]

log_format = "console"                      # "console" or "json"
log_level = "info"
log_dir = ""                                # empty keeps logs on stdout/stderr only
log_retention_days = 0                      # 0 disables pruning of old log files

reconnect_min_seconds = 1                   # initial reconnect backoff
reconnect_max_seconds = 30                  # backoff cap
rpc_timeout_seconds = 5
heartbeat_seconds = 15
idle_rip_timeout_seconds = 600              # kill the ripper if no progress for this long
`

const controllerSample = `# Amphigory controller configuration
# ====================================

task_dir = "~/.local/share/amphigory/tasks" # shared-filesystem task directory
store_path = "~/.local/share/amphigory/amphigory.db"
link_bind = "0.0.0.0:7488"                  # persistent-link listener
api_bind = "127.0.0.1:7487"                 # browser UI / HTTP API

inbox_dir = "~/library/inbox"               # where finished transcodes land for import
ripped_dir = "~/.local/share/amphigory/ripped"
presets_dir = "~/.config/amphigory/presets"

drapto_hints = [
  "/usr/bin/drapto",
  "/usr/local/bin/drapto",
]

log_format = "console"
log_level = "info"
log_dir = ""                                # empty keeps logs on stdout/stderr only
log_retention_days = 0                      # 0 disables pruning of old log files

heartbeat_interval_seconds = 15
heartbeat_timeout_seconds = 120
rpc_timeout_seconds = 5
consumer_poll_seconds = 5
reconcile_interval_seconds = 30
`

// CreateDaemonSample writes a sample daemon configuration file.
func CreateDaemonSample(path string) error {
	return writeSample(path, daemonSample)
}

// CreateControllerSample writes a sample controller configuration file.
func CreateControllerSample(path string) error {
	return writeSample(path, controllerSample)
}

func writeSample(path, contents string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
