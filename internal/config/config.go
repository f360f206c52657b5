// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"swood/internal/location"
	"swood/internal/notification"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Config represents the application configuration
type Config struct {
	Overpass     OverpassConfig     `yaml:"overpass"`
	Location     LocationConfig     `yaml:"location"`
	Storage      StorageConfig      `yaml:"storage"`
	Notification NotificationConfig `yaml:"notification"`
	Logging      LoggingConfig      `yaml:"logging"`
	OutputFormat string             `yaml:"output_format"`
}

// OverpassConfig holds POI API settings
type OverpassConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"` // per attempt, e.g. "30s"
}

// LocationConfig holds location service settings
type LocationConfig struct {
	Provider   string  `yaml:"provider"`   // static or ip
	Permission string  `yaml:"permission"` // granted or denied
	Latitude   float64 `yaml:"latitude"`
	Longitude  float64 `yaml:"longitude"`
	IPEndpoint string  `yaml:"ip_endpoint"`
}

// StorageConfig holds the persisted cache location
type StorageConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig holds user alert settings
type NotificationConfig struct {
	OS       *bool    `yaml:"os"`  // default: true
	Log      *bool    `yaml:"log"` // default: true
	LogPath  string   `yaml:"log_path"`
	LogTypes []string `yaml:"log_types"` // e.g. [fetch_error]; empty logs every type
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	File string `yaml:"file"` // used while the TUI owns the terminal
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Overpass.Timeout == "" {
		c.Overpass.Timeout = "30s"
	}
	if c.Location.Provider == "" {
		c.Location.Provider = "static"
	}
	if c.Location.Permission == "" {
		c.Location.Permission = location.PermissionGranted
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(GetDataDir(), "swood.db")
	}
	if c.Notification.LogPath == "" {
		c.Notification.LogPath = filepath.Join(GetDataDir(), "notifications.log")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(GetCacheDir(), "swood.log")
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it is created from the embedded sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and expands paths
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.applyDefaults()

	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	cfg.Notification.LogPath = ExpandPath(cfg.Notification.LogPath)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)

	return cfg, nil
}

// writeSample writes the embedded sample config to path
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	if _, err := time.ParseDuration(c.Overpass.Timeout); err != nil {
		return fmt.Errorf("invalid duration for overpass.timeout: %q", c.Overpass.Timeout)
	}

	if _, err := c.LogNotificationTypes(); err != nil {
		return fmt.Errorf("invalid notification.log_types: %w", err)
	}

	if _, err := location.FromSettings(c.LocationSettings()); err != nil {
		return fmt.Errorf("invalid location config: %w", err)
	}

	if strings.EqualFold(c.Location.Provider, "static") {
		if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
			return fmt.Errorf("location.latitude out of range: %g", c.Location.Latitude)
		}
		if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
			return fmt.Errorf("location.longitude out of range: %g", c.Location.Longitude)
		}
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(dbPath, outputFormat string) {
	if dbPath != "" {
		c.Storage.Path = ExpandPath(dbPath)
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// GetDatabasePath returns the path to the SQLite database
func (c *Config) GetDatabasePath() string {
	return c.Storage.Path
}

// GetOverpassTimeout returns the per-attempt timeout.
// Returns 30 seconds if not configured or if parsing fails.
func (c *Config) GetOverpassTimeout() time.Duration {
	d, err := time.ParseDuration(c.Overpass.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LocationSettings converts the location section for the location package
func (c *Config) LocationSettings() location.Settings {
	return location.Settings{
		Provider:   c.Location.Provider,
		Permission: c.Location.Permission,
		Latitude:   c.Location.Latitude,
		Longitude:  c.Location.Longitude,
		IPEndpoint: c.Location.IPEndpoint,
	}
}

// IsOSNotificationEnabled returns true unless notification.os is false
func (c *Config) IsOSNotificationEnabled() bool {
	return c.Notification.OS == nil || *c.Notification.OS
}

// IsLogNotificationEnabled returns true unless notification.log is false
func (c *Config) IsLogNotificationEnabled() bool {
	return c.Notification.Log == nil || *c.Notification.Log
}

// LogNotificationTypes parses notification.log_types
func (c *Config) LogNotificationTypes() ([]notification.NotificationType, error) {
	var types []notification.NotificationType
	for _, name := range c.Notification.LogTypes {
		t, err := notification.ParseType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// NotificationConfig converts the notification section for the notification package
func (c *Config) NotificationConfig() *notification.Config {
	osEnabled := c.IsOSNotificationEnabled()
	logEnabled := c.IsLogNotificationEnabled()
	// Validate has already rejected unknown names
	types, _ := c.LogNotificationTypes()
	return &notification.Config{
		Enabled: osEnabled || logEnabled,
		OSNotification: notification.OSNotificationConfig{
			Enabled:            osEnabled,
			OnFetchError:       true,
			OnPermissionDenied: true,
			OnStaleResults:     false,
		},
		LogNotification: notification.LogNotificationConfig{
			Enabled: logEnabled,
			Path:    c.Notification.LogPath,
			Types:   types,
		},
	}
}

// getXDGDir returns a directory path following the XDG Base Directory layout.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "swood")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "swood")
	}
	return filepath.Join(home, fallbackPath, "swood")
}

// GetConfigDir returns the configuration directory following the XDG Base Directory layout
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following the XDG Base Directory layout
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following the XDG Base Directory layout
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
