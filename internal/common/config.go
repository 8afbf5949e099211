package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Engine      EngineConfig  `toml:"engine"`
	Sweeper     SweeperConfig `toml:"sweeper"`
	Users       UsersConfig   `toml:"users"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StoreMode selects which metadata backend(s) are active.
// The mode is an explicit, time-bounded migration state, surfaced on the
// status endpoint so operators can confirm when it is safe to finalize.
type StoreMode string

const (
	// StoreModePrimary routes all reads and writes to the Badger backend only.
	StoreModePrimary StoreMode = "primary"
	// StoreModeDual writes to both backends; the SQLite backend is
	// authoritative for reads, the Badger write is best-effort.
	StoreModeDual StoreMode = "dual"
	// StoreModeSecondary routes all reads and writes to the SQLite backend only.
	StoreModeSecondary StoreMode = "secondary"
)

type StorageConfig struct {
	Mode             StoreMode    `toml:"mode"`               // primary | dual | secondary
	ReadFallback     bool         `toml:"read_fallback"`      // fall back to primary when the authoritative read misses
	RepairOnFallback bool         `toml:"repair_on_fallback"` // lazily copy fallback hits into the authoritative backend
	Badger           BadgerConfig `toml:"badger"`
	SQLite           SQLiteConfig `toml:"sqlite"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	WALMode       bool   `toml:"wal_mode"`        // Enable WAL journal mode
	CacheSizeMB   int    `toml:"cache_size_mb"`   // Page cache size in MB
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Lock wait timeout in milliseconds
}

// EngineConfig contains configuration for the downstream automation engine
type EngineConfig struct {
	BaseURL      string `toml:"base_url"`      // Engine API base URL
	TokenURL     string `toml:"token_url"`     // OAuth2 token endpoint (client credentials grant)
	ClientID     string `toml:"client_id"`     // OAuth2 client id
	ClientSecret string `toml:"client_secret"` // OAuth2 client secret
	Scope        string `toml:"scope"`         // OAuth2 scope(s), space-separated
	QueueName    string `toml:"queue_name"`    // Target extraction queue name
	FolderID     string `toml:"folder_id"`     // Engine organization unit / folder id
	Timeout      string `toml:"timeout"`       // HTTP timeout for auth and submit calls, e.g. "30s"
	RateLimit    string `toml:"rate_limit"`    // Minimum interval between submit calls, e.g. "1s"
}

// SweeperConfig contains configuration for the stuck-batch retry sweeper
type SweeperConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"` // e.g. "5m" - sweep period and staleness threshold
}

// UsersConfig contains configuration for the validation-user directory
type UsersConfig struct {
	Dir string `toml:"dir"` // Directory containing user files (TOML)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in tenderdock.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Mode:         StoreModePrimary,
			ReadFallback: false,
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
			SQLite: SQLiteConfig{
				Path:          "./data/tenderdock.db",
				WALMode:       true,
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
			},
		},
		Engine: EngineConfig{
			QueueName: "DocumentExtraction",
			Timeout:   "30s",
			RateLimit: "1s",
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: "5m",
		},
		Users: UsersConfig{
			Dir: "./users",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration from a single file (or defaults when empty)
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TENDERDOCK_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TENDERDOCK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TENDERDOCK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if mode := os.Getenv("TENDERDOCK_STORAGE_MODE"); mode != "" {
		config.Storage.Mode = StoreMode(mode)
	}
	if fallback := os.Getenv("TENDERDOCK_STORAGE_READ_FALLBACK"); fallback != "" {
		config.Storage.ReadFallback = fallback == "true" || fallback == "1"
	}
	if badgerPath := os.Getenv("TENDERDOCK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if sqlitePath := os.Getenv("TENDERDOCK_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}

	// Engine configuration
	if baseURL := os.Getenv("TENDERDOCK_ENGINE_BASE_URL"); baseURL != "" {
		config.Engine.BaseURL = baseURL
	}
	if tokenURL := os.Getenv("TENDERDOCK_ENGINE_TOKEN_URL"); tokenURL != "" {
		config.Engine.TokenURL = tokenURL
	}
	if clientID := os.Getenv("TENDERDOCK_ENGINE_CLIENT_ID"); clientID != "" {
		config.Engine.ClientID = clientID
	}
	if secret := os.Getenv("TENDERDOCK_ENGINE_CLIENT_SECRET"); secret != "" {
		config.Engine.ClientSecret = secret
	}

	// Sweeper configuration
	if interval := os.Getenv("TENDERDOCK_SWEEPER_INTERVAL"); interval != "" {
		config.Sweeper.Interval = interval
	}

	// Logging configuration
	if level := os.Getenv("TENDERDOCK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TENDERDOCK_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case StoreModePrimary, StoreModeDual, StoreModeSecondary:
	default:
		return fmt.Errorf("invalid storage mode %q (expected primary, dual or secondary)", c.Storage.Mode)
	}

	if _, err := c.SweepInterval(); err != nil {
		return fmt.Errorf("invalid sweeper interval %q: %w", c.Sweeper.Interval, err)
	}

	return nil
}

// SweepInterval parses the configured sweeper interval
func (c *Config) SweepInterval() (time.Duration, error) {
	if c.Sweeper.Interval == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(c.Sweeper.Interval)
}

// SubmitTimeout parses the configured engine call timeout
func (e *EngineConfig) SubmitTimeout() time.Duration {
	return parseDurationOr(e.Timeout, 30*time.Second)
}

// SubmitInterval parses the configured minimum interval between engine calls
func (e *EngineConfig) SubmitInterval() time.Duration {
	return parseDurationOr(e.RateLimit, time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
