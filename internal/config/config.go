package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. FILETRANSFER_STORE_DRIVER
const EnvPrefix = "FILETRANSFER"

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// Config represents the entire application configuration
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Download    DownloadConfig    `mapstructure:"download"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// StoreConfig selects the key-value store holding transfer state
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	CacheSizeMB   int    `mapstructure:"cache_size_mb"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// HTTPConfig contains transport settings shared by downloads and uploads
type HTTPConfig struct {
	SkipTLSVerify         bool   `mapstructure:"skip_tls_verify"`
	BufferSizeMB          int    `mapstructure:"buffer_size_mb"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	UploadTimeout         string `mapstructure:"upload_timeout"`
}

// DownloadConfig contains download settings
type DownloadConfig struct {
	RootDir          string `mapstructure:"root_dir"`
	ProgressInterval string `mapstructure:"progress_interval"`
	CheckDiskSpace   bool   `mapstructure:"check_disk_space"`
}

// UploadConfig contains upload settings
type UploadConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// MaintenanceConfig controls removal of abandoned temp files
type MaintenanceConfig struct {
	TempFileMaxAge string `mapstructure:"temp_file_max_age"`
	Interval       string `mapstructure:"interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from the specified file path. An empty path
// uses defaults plus environment overrides. A .env file in the working
// directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "")
	v.SetDefault("store.cache_size_mb", 16)
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("http.skip_tls_verify", false)
	v.SetDefault("http.buffer_size_mb", 1)
	v.SetDefault("http.response_header_timeout", "30s")
	v.SetDefault("http.upload_timeout", "5m")
	v.SetDefault("download.root_dir", "downloads")
	v.SetDefault("download.progress_interval", "250ms")
	v.SetDefault("download.check_disk_space", true)
	v.SetDefault("upload.endpoint", "")
	v.SetDefault("maintenance.temp_file_max_age", "168h")
	v.SetDefault("maintenance.interval", "1h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate store config
	switch c.Store.Driver {
	case DriverSQLite, DriverBadger, DriverMemory:
		// Valid drivers
	default:
		return fmt.Errorf("invalid store.driver: %s", c.Store.Driver)
	}

	if c.Download.RootDir == "" {
		return fmt.Errorf("download.root_dir is required")
	}
	if c.HTTP.BufferSizeMB < 0 || c.HTTP.BufferSizeMB > 64 {
		return fmt.Errorf("http.buffer_size_mb must be between 0 and 64")
	}

	// Validate durations
	durations := map[string]string{
		"http.response_header_timeout":  c.HTTP.ResponseHeaderTimeout,
		"http.upload_timeout":           c.HTTP.UploadTimeout,
		"download.progress_interval":    c.Download.ProgressInterval,
		"maintenance.temp_file_max_age": c.Maintenance.TempFileMaxAge,
		"maintenance.interval":          c.Maintenance.Interval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetPath returns the store location, defaulting to a hidden directory
// under the download root
func (c *StoreConfig) GetPath(rootDir string) string {
	if c.Path != "" {
		return c.Path
	}
	switch c.Driver {
	case DriverBadger:
		return filepath.Join(rootDir, ".filetransfer", "badger")
	default:
		return filepath.Join(rootDir, ".filetransfer", "state.db")
	}
}

// GetBufferSize returns the buffer size in bytes
func (c *HTTPConfig) GetBufferSize() int {
	if c.BufferSizeMB <= 0 {
		return 1024 * 1024 // 1MB default
	}
	return c.BufferSizeMB * 1024 * 1024
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *HTTPConfig) GetResponseHeaderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ResponseHeaderTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetUploadTimeout returns the per-request upload timeout as time.Duration
func (c *HTTPConfig) GetUploadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.UploadTimeout)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetProgressInterval returns the progress sample interval as time.Duration
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressInterval)
	return d
}

// GetTempFileMaxAge returns the age after which orphaned temp files are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	if d == 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetInterval returns the maintenance interval as time.Duration
func (c *MaintenanceConfig) GetInterval() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	if d == 0 {
		return time.Hour
	}
	return d
}
