package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends for the local admission record.
const (
	StorageSQLite = "sqlite"
	StorageDiskv  = "diskv"
)

// APIConfig holds the backend endpoints.
type APIConfig struct {
	// BaseURL is the root of the REST API (e.g., https://api.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// StreamURL is the websocket endpoint of the push channel. When empty it
	// is derived from BaseURL.
	StreamURL string `mapstructure:"stream_url" yaml:"stream_url"`

	// TimeoutSec bounds every HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// StorageConfig selects where the durable dedup sets live.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// PopupConfig controls the pop-up stack.
type PopupConfig struct {
	DurationMS int `mapstructure:"duration_ms" yaml:"duration_ms"`
	OffsetRows int `mapstructure:"offset_rows" yaml:"offset_rows"`
}

// ReminderConfig controls reminder derivation.
type ReminderConfig struct {
	ThresholdMin    int `mapstructure:"threshold_min" yaml:"threshold_min"`
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// QueueConfig controls the mutation queue.
type QueueConfig struct {
	DelayMS int `mapstructure:"delay_ms" yaml:"delay_ms"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Popup    PopupConfig    `mapstructure:"popup" yaml:"popup"`
	Reminder ReminderConfig `mapstructure:"reminder" yaml:"reminder"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
}

// PopupDuration returns how long a pop-up stays visible.
func (c AppConfig) PopupDuration() time.Duration {
	return time.Duration(c.Popup.DurationMS) * time.Millisecond
}

// QueueDelay returns the minimum gap between two mutation dispatches.
func (c AppConfig) QueueDelay() time.Duration {
	return time.Duration(c.Queue.DelayMS) * time.Millisecond
}

// PollInterval returns the task snapshot interval.
func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Reminder.PollIntervalSec) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (c AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// ConfigDir returns ~/.config/taskpulse.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskpulse")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskpulse/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://127.0.0.1:8787",
			TimeoutSec: 15,
		},
		Storage: StorageConfig{
			Backend: StorageSQLite,
			Path:    filepath.Join(ConfigDir(), "taskpulse.db"),
		},
		Popup: PopupConfig{
			DurationMS: 6000,
			OffsetRows: 5,
		},
		Reminder: ReminderConfig{
			ThresholdMin:    120,
			PollIntervalSec: 60,
		},
		Queue: QueueConfig{
			DelayMS: 500,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.stream_url", d.API.StreamURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("popup.duration_ms", d.Popup.DurationMS)
	v.SetDefault("popup.offset_rows", d.Popup.OffsetRows)
	v.SetDefault("reminder.threshold_min", d.Reminder.ThresholdMin)
	v.SetDefault("reminder.poll_interval_sec", d.Reminder.PollIntervalSec)
	v.SetDefault("queue.delay_ms", d.Queue.DelayMS)
	v.SetDefault("display.theme", d.Display.Theme)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with TASKPULSE_ override file values
// (TASKPULSE_API_BASE_URL, TASKPULSE_QUEUE_DELAY_MS, ...). If the file does
// not exist, defaults plus environment are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("taskpulse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, missingFile := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !missingFile && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Storage.Backend {
	case StorageSQLite, StorageDiskv:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Popup.DurationMS <= 0 {
		c.Popup.DurationMS = 6000
	}
	if c.Popup.OffsetRows <= 0 {
		c.Popup.OffsetRows = 5
	}
	if c.Reminder.ThresholdMin <= 0 {
		c.Reminder.ThresholdMin = 120
	}
	if c.Reminder.PollIntervalSec <= 0 {
		c.Reminder.PollIntervalSec = 60
	}
	if c.Queue.DelayMS < 0 {
		c.Queue.DelayMS = 0
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 15
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("storage", cfg.Storage)
	v.Set("popup", cfg.Popup)
	v.Set("reminder", cfg.Reminder)
	v.Set("queue", cfg.Queue)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
