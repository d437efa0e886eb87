package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// DaemonConfig is the small, host-local configuration layer described in
// just enough for the daemon to find the shared task
// directory, the optical drive, and the controller it should dial.
type DaemonConfig struct {
	DaemonID     string   `toml:"daemon_id"`
	TaskDir      string   `toml:"task_dir"`
	OpticalDrive string   `toml:"optical_drive"`
	LinkURL      string   `toml:"link_url"`
	MakeMKVHints []string `toml:"makemkv_hints"`
	LogFormat    string   `toml:"log_format"`
	LogLevel     string   `toml:"log_level"`
	LogDir       string   `toml:"log_dir"`

	LogRetentionDays int `toml:"log_retention_days"`

	ReconnectMinSeconds int `toml:"reconnect_min_seconds"`
	ReconnectMaxSeconds int `toml:"reconnect_max_seconds"`
	RPCTimeoutSeconds   int `toml:"rpc_timeout_seconds"`
	HeartbeatSeconds    int `toml:"heartbeat_seconds"`
	IdleRipTimeoutSecs  int `toml:"idle_rip_timeout_seconds"`
}

// ControllerConfig is the richer configuration layer, loaded by the
// controller from its own file. It is not sent to or cached on the daemon.
type ControllerConfig struct {
	TaskDir    string `toml:"task_dir"`
	StorePath  string `toml:"store_path"`
	LinkBind   string `toml:"link_bind"`
	APIBind    string `toml:"api_bind"`
	LogFormat  string `toml:"log_format"`
	LogLevel   string `toml:"log_level"`
	LogDir     string `toml:"log_dir"`
	InboxDir   string `toml:"inbox_dir"`
	RippedDir  string `toml:"ripped_dir"`
	PresetsDir string `toml:"presets_dir"`

	DraptoHints []string `toml:"drapto_hints"`

	LogRetentionDays         int `toml:"log_retention_days"`
	HeartbeatIntervalSeconds int `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int `toml:"heartbeat_timeout_seconds"`
	RPCTimeoutSeconds        int `toml:"rpc_timeout_seconds"`
	ConsumerPollSeconds      int `toml:"consumer_poll_seconds"`
	ReconcileIntervalSeconds int `toml:"reconcile_interval_seconds"`
}

// DefaultDaemonConfigPath returns the conventional daemon config location.
func DefaultDaemonConfigPath() (string, error) {
	return expandPath("~/.config/amphigory/daemon.toml")
}

// DefaultControllerConfigPath returns the conventional controller config location.
func DefaultControllerConfigPath() (string, error) {
	return expandPath("~/.config/amphigory/controller.toml")
}

// LoadDaemonConfig locates, parses, normalizes, and validates the daemon's
// local configuration file, generating and persisting a daemon_id on first
// run.
func LoadDaemonConfig(path string) (*DaemonConfig, string, error) {
	cfg := DefaultDaemon()

	resolved, exists, err := resolveConfigPath(path, "~/.config/amphigory/daemon.toml", "amphigory-daemon.toml")
	if err != nil {
		return nil, "", err
	}

	if exists {
		if err := decodeTOMLFile(resolved, &cfg); err != nil {
			return nil, "", err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}

	persistID := strings.TrimSpace(cfg.DaemonID) == ""
	if persistID {
		cfg.DaemonID = uuid.New().String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	if persistID {
		if err := cfg.save(resolved); err != nil {
			return nil, "", fmt.Errorf("persist daemon_id: %w", err)
		}
	}

	return &cfg, resolved, nil
}

// LoadControllerConfig locates, parses, normalizes, and validates the
// controller's configuration file.
func LoadControllerConfig(path string) (*ControllerConfig, string, error) {
	cfg := DefaultController()

	resolved, exists, err := resolveConfigPath(path, "~/.config/amphigory/controller.toml", "amphigory-controller.toml")
	if err != nil {
		return nil, "", err
	}

	if exists {
		if err := decodeTOMLFile(resolved, &cfg); err != nil {
			return nil, "", err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolved, nil
}

func decodeTOMLFile(path string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(out); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *DaemonConfig) save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveConfigPath(path, defaultRel, projectRel string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultRel)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectRel)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs to operate.
func (c *DaemonConfig) EnsureDirectories() error {
	return os.MkdirAll(c.TaskDir, 0o755)
}

// EnsureDirectories creates the directories the controller needs to operate.
func (c *ControllerConfig) EnsureDirectories() error {
	for _, dir := range []string{c.TaskDir, c.InboxDir, c.RippedDir, c.PresetsDir, filepath.Dir(c.StorePath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
