// Package config loads, normalizes, and validates Amphigory configuration data.
//
// Two configuration layers exist, mirroring the daemon/controller split: a
// small DaemonConfig (link target, task directory, optical drive) read from a
// local TOML file on the host, and a richer ControllerConfig read from the
// controller's own TOML file. The controller does not send its
// configuration to the daemon: a config_updated notification only makes the
// daemon re-read and revalidate its local file.
//
// Both layers expand user paths (including tilde shortcuts) and are
// validated before use so the rest of the repository can assume sanitized
// values. No environment-variable fallbacks are applied.
package config
