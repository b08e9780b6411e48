// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Display    DisplayConfig    `mapstructure:"display"`
	Buffers    BuffersConfig    `mapstructure:"buffers"`
	Guest      GuestConfig      `mapstructure:"guest"`
	Input      InputConfig      `mapstructure:"input"`
	Control    ControlConfig    `mapstructure:"control"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Compositor CompositorConfig `mapstructure:"compositor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DisplayConfig controls how the bridge talks to the compositor
type DisplayConfig struct {
	ConnPath                string `mapstructure:"conn_path"` // Compositor control socket
	Name                    string `mapstructure:"name"`      // Label shown in the status ident
	Limit                   int    `mapstructure:"limit"`     // Displays to bind, clamped to 4
	GL                      bool   `mapstructure:"gl"`
	DirectBlit              bool   `mapstructure:"direct_blit"`
	RefreshIntervalMs       int    `mapstructure:"refresh_interval_ms"`
	HiddenRefreshIntervalMs int    `mapstructure:"hidden_refresh_interval_ms"`
	HandshakeTimeoutMs      int    `mapstructure:"handshake_timeout_ms"`
	LockTimeoutMs           int    `mapstructure:"lock_timeout_ms"`
	DrainCap                int    `mapstructure:"drain_cap"` // 0 drains the queue fully
}

// BuffersConfig holds buffering defaults; compositor supplied arguments win
type BuffersConfig struct {
	VideoCount int `mapstructure:"video_count"`
	AudioCount int `mapstructure:"audio_count"`
	AudioSize  int `mapstructure:"audio_size"`
}

// GuestConfig describes the synthetic guest the bridge drives
type GuestConfig struct {
	Consoles     int   `mapstructure:"consoles"`
	TextConsoles []int `mapstructure:"text_consoles"` // Console indices without graphics
	Width        int   `mapstructure:"width"`
	Height       int   `mapstructure:"height"`
}

// InputConfig selects the virtual input backend
type InputConfig struct {
	Backend      string `mapstructure:"backend"` // "uinput" or "log"
	UInputPath   string `mapstructure:"uinput_path"`
	DeviceName   string `mapstructure:"device_name"`
	ScreenWidth  int    `mapstructure:"screen_width"`
	ScreenHeight int    `mapstructure:"screen_height"`
}

// ControlConfig contains the local IPC settings
type ControlConfig struct {
	SocketPath string `mapstructure:"socket_path"` // Empty means /tmp/segbridge-<user>.sock
}

// MonitorConfig contains the SSH status monitor settings
type MonitorConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	BindAddress string   `mapstructure:"bind_address"`
	Port        int      `mapstructure:"port"`
	HostKeyPath string   `mapstructure:"host_key_path"`
	AllowedKeys []string `mapstructure:"allowed_keys"` // SHA256 fingerprints
}

// CompositorConfig configures the headless compositor peer
type CompositorConfig struct {
	Dir         string `mapstructure:"dir"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	Args        string `mapstructure:"args"`
	MaxSegments int    `mapstructure:"max_segments"`
	SnapshotDir string `mapstructure:"snapshot_dir"` // Empty disables PNG dumps
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Display: DisplayConfig{
			ConnPath:                "/tmp/segbridge-compositor.sock",
			Name:                    getHostname(),
			Limit:                   4,
			GL:                      false,
			DirectBlit:              false,
			RefreshIntervalMs:       30,
			HiddenRefreshIntervalMs: 500,
			HandshakeTimeoutMs:      5000,
			LockTimeoutMs:           250,
			DrainCap:                0,
		},
		Buffers: BuffersConfig{
			VideoCount: 1,
			AudioCount: 8,
			AudioSize:  4096,
		},
		Guest: GuestConfig{
			Consoles:     1,
			TextConsoles: []int{},
			Width:        640,
			Height:       480,
		},
		Input: InputConfig{
			Backend:      "uinput",
			UInputPath:   "/dev/uinput",
			DeviceName:   "Segbridge Virtual Input",
			ScreenWidth:  1920,
			ScreenHeight: 1080,
		},
		Control: ControlConfig{
			SocketPath: "",
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        52530,
			HostKeyPath: "/etc/segbridge/host_key",
			AllowedKeys: []string{},
		},
		Compositor: CompositorConfig{
			Dir:         "",
			Width:       640,
			Height:      480,
			Args:        "vbufc=1:abufc=8:abuf_sz=4096",
			MaxSegments: 4,
			SnapshotDir: "",
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("segbridge")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/segbridge")

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			viper.AddConfigPath(fmt.Sprintf("/home/%s/.config/segbridge", sudoUser))
		} else if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "segbridge"))
		}

		viper.AddConfigPath(".")
	}

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		// An explicit path that doesn't exist yet is created by Save
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// setDefaults registers every field individually so partial files merge
func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("display.conn_path", d.Display.ConnPath)
	viper.SetDefault("display.name", d.Display.Name)
	viper.SetDefault("display.limit", d.Display.Limit)
	viper.SetDefault("display.gl", d.Display.GL)
	viper.SetDefault("display.direct_blit", d.Display.DirectBlit)
	viper.SetDefault("display.refresh_interval_ms", d.Display.RefreshIntervalMs)
	viper.SetDefault("display.hidden_refresh_interval_ms", d.Display.HiddenRefreshIntervalMs)
	viper.SetDefault("display.handshake_timeout_ms", d.Display.HandshakeTimeoutMs)
	viper.SetDefault("display.lock_timeout_ms", d.Display.LockTimeoutMs)
	viper.SetDefault("display.drain_cap", d.Display.DrainCap)

	viper.SetDefault("buffers.video_count", d.Buffers.VideoCount)
	viper.SetDefault("buffers.audio_count", d.Buffers.AudioCount)
	viper.SetDefault("buffers.audio_size", d.Buffers.AudioSize)

	viper.SetDefault("guest.consoles", d.Guest.Consoles)
	viper.SetDefault("guest.text_consoles", d.Guest.TextConsoles)
	viper.SetDefault("guest.width", d.Guest.Width)
	viper.SetDefault("guest.height", d.Guest.Height)

	viper.SetDefault("input.backend", d.Input.Backend)
	viper.SetDefault("input.uinput_path", d.Input.UInputPath)
	viper.SetDefault("input.device_name", d.Input.DeviceName)
	viper.SetDefault("input.screen_width", d.Input.ScreenWidth)
	viper.SetDefault("input.screen_height", d.Input.ScreenHeight)

	viper.SetDefault("control.socket_path", d.Control.SocketPath)

	viper.SetDefault("monitor.enabled", d.Monitor.Enabled)
	viper.SetDefault("monitor.bind_address", d.Monitor.BindAddress)
	viper.SetDefault("monitor.port", d.Monitor.Port)
	viper.SetDefault("monitor.host_key_path", d.Monitor.HostKeyPath)
	viper.SetDefault("monitor.allowed_keys", d.Monitor.AllowedKeys)

	viper.SetDefault("compositor.dir", d.Compositor.Dir)
	viper.SetDefault("compositor.width", d.Compositor.Width)
	viper.SetDefault("compositor.height", d.Compositor.Height)
	viper.SetDefault("compositor.args", d.Compositor.Args)
	viper.SetDefault("compositor.max_segments", d.Compositor.MaxSegments)
	viper.SetDefault("compositor.snapshot_dir", d.Compositor.SnapshotDir)

	viper.SetDefault("logging.log_level", d.Logging.LogLevel)
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if os.Getuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return "/etc/segbridge/segbridge.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/segbridge/segbridge.toml"
	}

	return filepath.Join(home, ".config", "segbridge", "segbridge.toml")
}

// UpdateDisplay updates display configuration
func UpdateDisplay(d DisplayConfig) error {
	viper.Set("display.conn_path", d.ConnPath)
	viper.Set("display.name", d.Name)
	viper.Set("display.limit", d.Limit)
	viper.Set("display.gl", d.GL)
	viper.Set("display.direct_blit", d.DirectBlit)
	viper.Set("display.refresh_interval_ms", d.RefreshIntervalMs)
	viper.Set("display.hidden_refresh_interval_ms", d.HiddenRefreshIntervalMs)
	viper.Set("display.handshake_timeout_ms", d.HandshakeTimeoutMs)
	viper.Set("display.lock_timeout_ms", d.LockTimeoutMs)
	viper.Set("display.drain_cap", d.DrainCap)
	Get().Display = d
	return Save()
}

// UpdateInput updates input configuration
func UpdateInput(in InputConfig) error {
	viper.Set("input.backend", in.Backend)
	viper.Set("input.uinput_path", in.UInputPath)
	viper.Set("input.device_name", in.DeviceName)
	viper.Set("input.screen_width", in.ScreenWidth)
	viper.Set("input.screen_height", in.ScreenHeight)
	Get().Input = in
	return Save()
}

// SetMonitorEnabled toggles the SSH status monitor
func SetMonitorEnabled(enabled bool) error {
	viper.Set("monitor.enabled", enabled)
	Get().Monitor.Enabled = enabled
	return Save()
}

// AddMonitorKey allows an SSH key fingerprint on the status monitor
func AddMonitorKey(fingerprint string) error {
	c := Get()

	for _, fp := range c.Monitor.AllowedKeys {
		if fp == fingerprint {
			return fmt.Errorf("key already allowed")
		}
	}

	c.Monitor.AllowedKeys = append(c.Monitor.AllowedKeys, fingerprint)
	viper.Set("monitor.allowed_keys", c.Monitor.AllowedKeys)
	return Save()
}

// RemoveMonitorKey removes an SSH key fingerprint from the monitor allowlist
func RemoveMonitorKey(fingerprint string) error {
	c := Get()

	for i, fp := range c.Monitor.AllowedKeys {
		if fp == fingerprint {
			c.Monitor.AllowedKeys = append(c.Monitor.AllowedKeys[:i], c.Monitor.AllowedKeys[i+1:]...)
			viper.Set("monitor.allowed_keys", c.Monitor.AllowedKeys)
			return Save()
		}
	}

	return fmt.Errorf("key not found in allowlist")
}

// IsMonitorKeyAllowed checks if an SSH key fingerprint may use the monitor
func IsMonitorKeyAllowed(fingerprint string) bool {
	for _, fp := range Get().Monitor.AllowedKeys {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// Helper function to get hostname
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "segbridge"
	}
	return hostname
}
