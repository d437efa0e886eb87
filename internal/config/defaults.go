package config

const (
	defaultTaskDir      = "~/.local/share/amphigory/tasks"
	defaultOpticalDrive = "/dev/sr0"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"

	defaultReconnectMinSeconds = 1
	defaultReconnectMaxSeconds = 30
	defaultRPCTimeoutSeconds   = 5
	defaultHeartbeatSeconds    = 15
	defaultIdleRipTimeoutSecs  = 600

	defaultLinkBind   = "0.0.0.0:7488"
	defaultAPIBind    = "127.0.0.1:7487"
	defaultStorePath  = "~/.local/share/amphigory/amphigory.db"
	defaultInboxDir   = "~/library/inbox"
	defaultRippedDir  = "~/.local/share/amphigory/ripped"
	defaultPresetsDir = "~/.config/amphigory/presets"

	defaultConsumerPollSeconds      = 5
	defaultReconcileIntervalSeconds = 30
)

var defaultMakeMKVHints = []string{
	"/usr/bin/makemkvcon",
	"/usr/local/bin/makemkvcon",
	"/opt/makemkv/bin/makemkvcon",
}

var defaultDraptoHints = []string{
	"/usr/bin/drapto",
	"/usr/local/bin/drapto",
}

// DefaultDaemon returns a DaemonConfig populated with repository defaults.
func DefaultDaemon() DaemonConfig {
	return DaemonConfig{
		TaskDir:             defaultTaskDir,
		OpticalDrive:        defaultOpticalDrive,
		LinkURL:             "ws://127.0.0.1:7488/link",
		MakeMKVHints:        append([]string(nil), defaultMakeMKVHints...),
		LogFormat:           defaultLogFormat,
		LogLevel:            defaultLogLevel,
		ReconnectMinSeconds: defaultReconnectMinSeconds,
		ReconnectMaxSeconds: defaultReconnectMaxSeconds,
		RPCTimeoutSeconds:   defaultRPCTimeoutSeconds,
		HeartbeatSeconds:    defaultHeartbeatSeconds,
		IdleRipTimeoutSecs:  defaultIdleRipTimeoutSecs,
	}
}

// DefaultController returns a ControllerConfig populated with repository defaults.
func DefaultController() ControllerConfig {
	return ControllerConfig{
		TaskDir:                  defaultTaskDir,
		StorePath:                defaultStorePath,
		LinkBind:                 defaultLinkBind,
		APIBind:                  defaultAPIBind,
		InboxDir:                 defaultInboxDir,
		RippedDir:                defaultRippedDir,
		PresetsDir:               defaultPresetsDir,
		DraptoHints:              append([]string(nil), defaultDraptoHints...),
		LogFormat:                defaultLogFormat,
		LogLevel:                 defaultLogLevel,
		HeartbeatIntervalSeconds: defaultHeartbeatSeconds,
		HeartbeatTimeoutSeconds:  defaultHeartbeatSeconds * 8,
		RPCTimeoutSeconds:        defaultRPCTimeoutSeconds,
		ConsumerPollSeconds:      defaultConsumerPollSeconds,
		ReconcileIntervalSeconds: defaultReconcileIntervalSeconds,
	}
}
