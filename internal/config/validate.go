package config

import (
	"errors"
	"strings"
)

// Validate ensures the daemon configuration is usable.
func (c *DaemonConfig) Validate() error {
	if strings.TrimSpace(c.TaskDir) == "" {
		return errors.New("task_dir must be set")
	}
	if strings.TrimSpace(c.LinkURL) == "" {
		return errors.New("link_url must be set")
	}
	if len(c.MakeMKVHints) == 0 {
		return errors.New("makemkv_hints must include at least one candidate path")
	}
	if err := ensurePositiveMap(map[string]int{
		"reconnect_min_seconds":    c.ReconnectMinSeconds,
		"reconnect_max_seconds":    c.ReconnectMaxSeconds,
		"rpc_timeout_seconds":      c.RPCTimeoutSeconds,
		"heartbeat_seconds":        c.HeartbeatSeconds,
		"idle_rip_timeout_seconds": c.IdleRipTimeoutSecs,
	}); err != nil {
		return err
	}
	if c.ReconnectMaxSeconds < c.ReconnectMinSeconds {
		return errors.New("reconnect_max_seconds must be >= reconnect_min_seconds")
	}
	return nil
}

// Validate ensures the controller configuration is usable.
func (c *ControllerConfig) Validate() error {
	if strings.TrimSpace(c.TaskDir) == "" {
		return errors.New("task_dir must be set")
	}
	if strings.TrimSpace(c.StorePath) == "" {
		return errors.New("store_path must be set")
	}
	if strings.TrimSpace(c.LinkBind) == "" {
		return errors.New("link_bind must be set")
	}
	if strings.TrimSpace(c.APIBind) == "" {
		return errors.New("api_bind must be set")
	}
	if len(c.DraptoHints) == 0 {
		return errors.New("drapto_hints must include at least one candidate path")
	}
	if err := ensurePositiveMap(map[string]int{
		"heartbeat_interval_seconds": c.HeartbeatIntervalSeconds,
		"heartbeat_timeout_seconds":  c.HeartbeatTimeoutSeconds,
		"rpc_timeout_seconds":        c.RPCTimeoutSeconds,
		"consumer_poll_seconds":      c.ConsumerPollSeconds,
		"reconcile_interval_seconds": c.ReconcileIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.HeartbeatTimeoutSeconds <= c.HeartbeatIntervalSeconds {
		return errors.New("heartbeat_timeout_seconds must be greater than heartbeat_interval_seconds")
	}
	return nil
}
