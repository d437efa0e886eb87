package config

import "strings"

func (c *DaemonConfig) normalize() error {
	var err error
	if c.TaskDir, err = expandPath(c.TaskDir); err != nil {
		return err
	}
	c.OpticalDrive = strings.TrimSpace(c.OpticalDrive)
	if c.OpticalDrive == "" {
		c.OpticalDrive = defaultOpticalDrive
	}
	c.LinkURL = strings.TrimSpace(c.LinkURL)
	if len(c.MakeMKVHints) == 0 {
		c.MakeMKVHints = append([]string(nil), defaultMakeMKVHints...)
	}
	c.LogFormat = normalizeLogFormat(c.LogFormat)
	c.LogLevel = normalizeLogLevel(c.LogLevel)
	if c.LogDir != "" {
		if c.LogDir, err = expandPath(c.LogDir); err != nil {
			return err
		}
	}
	if c.LogRetentionDays < 0 {
		c.LogRetentionDays = 0
	}
	if c.ReconnectMinSeconds <= 0 {
		c.ReconnectMinSeconds = defaultReconnectMinSeconds
	}
	if c.ReconnectMaxSeconds <= 0 {
		c.ReconnectMaxSeconds = defaultReconnectMaxSeconds
	}
	if c.RPCTimeoutSeconds <= 0 {
		c.RPCTimeoutSeconds = defaultRPCTimeoutSeconds
	}
	if c.HeartbeatSeconds <= 0 {
		c.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if c.IdleRipTimeoutSecs <= 0 {
		c.IdleRipTimeoutSecs = defaultIdleRipTimeoutSecs
	}
	return nil
}

func (c *ControllerConfig) normalize() error {
	var err error
	if c.TaskDir, err = expandPath(c.TaskDir); err != nil {
		return err
	}
	if c.StorePath, err = expandPath(c.StorePath); err != nil {
		return err
	}
	if c.InboxDir, err = expandPath(c.InboxDir); err != nil {
		return err
	}
	if c.RippedDir, err = expandPath(c.RippedDir); err != nil {
		return err
	}
	if c.PresetsDir, err = expandPath(c.PresetsDir); err != nil {
		return err
	}
	c.LinkBind = strings.TrimSpace(c.LinkBind)
	if c.LinkBind == "" {
		c.LinkBind = defaultLinkBind
	}
	c.APIBind = strings.TrimSpace(c.APIBind)
	if c.APIBind == "" {
		c.APIBind = defaultAPIBind
	}
	if len(c.DraptoHints) == 0 {
		c.DraptoHints = append([]string(nil), defaultDraptoHints...)
	}
	c.LogFormat = normalizeLogFormat(c.LogFormat)
	c.LogLevel = normalizeLogLevel(c.LogLevel)
	if c.LogDir != "" {
		if c.LogDir, err = expandPath(c.LogDir); err != nil {
			return err
		}
	}
	if c.LogRetentionDays < 0 {
		c.LogRetentionDays = 0
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		c.HeartbeatIntervalSeconds = defaultHeartbeatSeconds
	}
	if c.HeartbeatTimeoutSeconds <= 0 {
		c.HeartbeatTimeoutSeconds = c.HeartbeatIntervalSeconds * 8
	}
	if c.RPCTimeoutSeconds <= 0 {
		c.RPCTimeoutSeconds = defaultRPCTimeoutSeconds
	}
	if c.ConsumerPollSeconds <= 0 {
		c.ConsumerPollSeconds = defaultConsumerPollSeconds
	}
	if c.ReconcileIntervalSeconds <= 0 {
		c.ReconcileIntervalSeconds = defaultReconcileIntervalSeconds
	}
	return nil
}

func normalizeLogFormat(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "json":
		return "json"
	default:
		return defaultLogFormat
	}
}

func normalizeLogLevel(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return defaultLogLevel
	}
	return trimmed
}
