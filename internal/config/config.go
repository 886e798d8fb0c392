package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Account     AccountConfig     `mapstructure:"account"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AccountConfig holds the account credentials used for login
type AccountConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// ProviderConfig holds provider endpoints and device identity
type ProviderConfig struct {
	Strategy    string `mapstructure:"strategy"`     // Backend strategy, "native-direct" is the only one today
	Territory   string `mapstructure:"territory"`    // ISO country code
	BaseURL     string `mapstructure:"base_url"`     // Storefront origin
	PlaybackURL string `mapstructure:"playback_url"` // Playback API origin
	DeviceID    string `mapstructure:"device_id"`    // Generated on first run
}

// PreferencesConfig holds user-tunable behavior
type PreferencesConfig struct {
	UseCache      bool   `mapstructure:"use_cache"`      // Serve catalog pages from the local cache
	CacheTTL      int    `mapstructure:"cache_ttl"`      // Cache lifetime in seconds
	PerfLogging   bool   `mapstructure:"perf_logging"`   // Log per-operation timings at info level
	MaxResolution string `mapstructure:"max_resolution"` // Playback cap, e.g. "1080p"
}

// StorageConfig holds local data placement
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"` // Cache and session storage, empty uses the OS default
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // Rotate after this size
	MaxBackups int    `mapstructure:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `mapstructure:"max_age_days"` // Drop rotated files older than this
}

// DefaultConfig returns the configuration used before any file or
// environment override is applied
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Strategy:    "native-direct",
			Territory:   "US",
			BaseURL:     "https://www.strand.tv",
			PlaybackURL: "https://play.strand.tv",
		},
		Preferences: PreferencesConfig{
			UseCache:      true,
			CacheTTL:      300,
			PerfLogging:   false,
			MaxResolution: "1080p",
		},
		Logging: LoggingConfig{
			File:       defaultLogPath(),
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "marquee", "marquee.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "marquee", "marquee.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "marquee")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "marquee")
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "marquee")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "marquee")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("MARQUEE")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()

	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("account.email", cfg.Account.Email)
	viper.Set("account.password", cfg.Account.Password)

	viper.Set("provider.strategy", cfg.Provider.Strategy)
	viper.Set("provider.territory", cfg.Provider.Territory)
	viper.Set("provider.base_url", cfg.Provider.BaseURL)
	viper.Set("provider.playback_url", cfg.Provider.PlaybackURL)
	viper.Set("provider.device_id", cfg.Provider.DeviceID)

	viper.Set("preferences.use_cache", cfg.Preferences.UseCache)
	viper.Set("preferences.cache_ttl", cfg.Preferences.CacheTTL)
	viper.Set("preferences.perf_logging", cfg.Preferences.PerfLogging)
	viper.Set("preferences.max_resolution", cfg.Preferences.MaxResolution)

	viper.Set("storage.data_dir", cfg.Storage.DataDir)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)
	viper.Set("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	viper.Set("logging.max_backups", cfg.Logging.MaxBackups)
	viper.Set("logging.max_age_days", cfg.Logging.MaxAgeDays)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnsureDeviceID generates and persists a device identifier on first run.
// The provider pins stream grants to it, so it must survive restarts.
func EnsureDeviceID(cfg *Config) error {
	if cfg.Provider.DeviceID != "" {
		return nil
	}
	cfg.Provider.DeviceID = uuid.NewString()
	return SaveConfig(cfg)
}

// IsConfigured returns true if account credentials are present
func (c *Config) IsConfigured() bool {
	return c.Account.Email != "" && c.Account.Password != ""
}

// DataDir returns the resolved data directory
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return defaultDataPath()
}

// SessionFile returns the path of the persisted session snapshot
func (c *Config) SessionFile() string {
	return filepath.Join(c.DataDir(), "session.json")
}
