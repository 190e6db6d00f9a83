package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"gopkg.in/yaml.v3"
)

// Compositor names accepted by the compositor setting
const (
	CompositorAuto     = "auto"
	CompositorHyprland = "hyprland"
	CompositorSway     = "sway"
	CompositorNiri     = "niri"
	CompositorX11      = "x11"
)

// BarConfig describes the bar process being supervised
type BarConfig struct {
	Name         string   `json:"name" yaml:"name"`
	Args         []string `json:"args" yaml:"args"`
	ToggleSignal string   `json:"toggle_signal" yaml:"toggle_signal"`
}

// DBusProbeConfig describes a D-Bus method returning an overlay's visibility
type DBusProbeConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Service   string `json:"service" yaml:"service"`
	Path      string `json:"path" yaml:"path"`
	Interface string `json:"interface" yaml:"interface"`
	Method    string `json:"method" yaml:"method"`
}

// OverlayConfig lists overlays that force the bar hidden while open
type OverlayConfig struct {
	Names        []string        `json:"names" yaml:"names"`
	PollInterval time.Duration   `json:"poll_interval" yaml:"poll_interval"`
	DBus         DBusProbeConfig `json:"dbus" yaml:"dbus"`
}

// Config represents the application configuration
type Config struct {
	LogLevel     string        `json:"log_level" yaml:"log_level"`
	LogPretty    bool          `json:"log_pretty" yaml:"log_pretty"`
	Compositor   string        `json:"compositor" yaml:"compositor"`
	Bar          BarConfig     `json:"bar" yaml:"bar"`
	Overlays     OverlayConfig `json:"overlays" yaml:"overlays"`
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout"`
	StatusAddr   string        `json:"status_addr" yaml:"status_addr"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		LogLevel:   "info",
		LogPretty:  false,
		Compositor: CompositorAuto,
		Bar: BarConfig{
			Name:         "waybar",
			Args:         []string{},
			ToggleSignal: "SIGUSR1",
		},
		Overlays: OverlayConfig{
			Names:        []string{"swaync-control-center"},
			PollInterval: 200 * time.Millisecond,
			DBus: DBusProbeConfig{
				Enabled:   false,
				Service:   "org.erikreider.swaync.cc",
				Path:      "/org/erikreider/swaync/cc",
				Interface: "org.erikreider.swaync.cc",
				Method:    "GetVisibility",
			},
		},
		QueryTimeout: 2 * time.Second,
	}
}

// Validate checks values that would otherwise fail deep inside the watcher
func (c *Config) Validate() error {
	switch c.Compositor {
	case CompositorAuto, CompositorHyprland, CompositorSway, CompositorNiri, CompositorX11:
	default:
		return fmt.Errorf("unknown compositor %q (use auto, hyprland, sway, niri or x11)", c.Compositor)
	}
	if strings.TrimSpace(c.Bar.Name) == "" {
		return fmt.Errorf("bar.name must not be empty")
	}
	if _, err := ParseSignal(c.Bar.ToggleSignal); err != nil {
		return err
	}
	if c.Overlays.PollInterval <= 0 {
		return fmt.Errorf("overlays.poll_interval must be positive, got %s", c.Overlays.PollInterval)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.Overlays.DBus.Enabled && (c.Overlays.DBus.Service == "" || c.Overlays.DBus.Path == "" || c.Overlays.DBus.Method == "") {
		return fmt.Errorf("overlays.dbus requires service, path and method when enabled")
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/navbar-watcher/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "navbar-watcher", "config.yaml"), nil
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("bar", m.config.Bar.Name).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk, filling unset fields with defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Bar.Args == nil {
		cfg.Bar.Args = []string{}
	}
	if cfg.Overlays.Names == nil {
		cfg.Overlays.Names = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Reload re-reads the file, keeping the previous config on failure
func (m *Manager) Reload() error {
	return m.load()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Bar.Args = slices.Clone(m.config.Bar.Args)
	cfg.Overlays.Names = slices.Clone(m.config.Overlays.Names)
	return &cfg
}

// GetConfigPath returns the configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetLogLevel overrides the log level (not persisted)
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// SetCompositor overrides the compositor selection (not persisted)
func (m *Manager) SetCompositor(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Compositor = name
}

// SetStatusAddr overrides the status server address (not persisted)
func (m *Manager) SetStatusAddr(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.StatusAddr = addr
}

// GetValue returns a single setting by its yaml key path
func (m *Manager) GetValue(key string) (string, error) {
	cfg := m.Get()
	switch key {
	case "log_level":
		return cfg.LogLevel, nil
	case "log_pretty":
		return fmt.Sprintf("%t", cfg.LogPretty), nil
	case "compositor":
		return cfg.Compositor, nil
	case "bar.name":
		return cfg.Bar.Name, nil
	case "bar.args":
		return strings.Join(cfg.Bar.Args, " "), nil
	case "bar.toggle_signal":
		return cfg.Bar.ToggleSignal, nil
	case "overlays.names":
		return strings.Join(cfg.Overlays.Names, ","), nil
	case "overlays.poll_interval":
		return cfg.Overlays.PollInterval.String(), nil
	case "overlays.dbus.enabled":
		return fmt.Sprintf("%t", cfg.Overlays.DBus.Enabled), nil
	case "query_timeout":
		return cfg.QueryTimeout.String(), nil
	case "status_addr":
		return cfg.StatusAddr, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// SetValue updates a single setting by its yaml key path and persists it
func (m *Manager) SetValue(key, value string) error {
	m.mu.Lock()
	next := *m.config
	next.Bar.Args = slices.Clone(m.config.Bar.Args)
	next.Overlays.Names = slices.Clone(m.config.Overlays.Names)
	m.mu.Unlock()

	switch key {
	case "log_level":
		next.LogLevel = value
	case "log_pretty":
		next.LogPretty = parseBool(value)
	case "compositor":
		next.Compositor = value
	case "bar.name":
		next.Bar.Name = value
	case "bar.args":
		next.Bar.Args = strings.Fields(value)
	case "bar.toggle_signal":
		next.Bar.ToggleSignal = value
	case "overlays.names":
		next.Overlays.Names = splitList(value)
	case "overlays.poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		next.Overlays.PollInterval = d
	case "overlays.dbus.enabled":
		next.Overlays.DBus.Enabled = parseBool(value)
	case "query_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		next.QueryTimeout = d
	case "status_addr":
		next.StatusAddr = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := next.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &next
	m.mu.Unlock()
	return m.Save()
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
