package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the lexdrill service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Redis     RedisConfig     `yaml:"redis"`
	SQL       SQLConfig       `yaml:"sql"`
	Inventory InventoryConfig `yaml:"inventory"`
	Selection SelectionConfig `yaml:"selection"`
	Session   SessionConfig   `yaml:"session"`
	Queue     QueueConfig     `yaml:"queue"`
	Generator GeneratorConfig `yaml:"generator"`
	SRS       SRSConfig       `yaml:"srs"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for admin routes.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RedisConfig holds key-value store connection settings.
type RedisConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SQLConfig holds relational store settings.
type SQLConfig struct {
	Driver       string `yaml:"driver"` // postgres, sqlite (default: postgres)
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	Migrate      bool   `yaml:"migrate"`
}

// InventoryConfig holds drill cache and replenishment settings.
type InventoryConfig struct {
	LowWatermark     int            `yaml:"low_watermark"`
	FlushThreshold   int            `yaml:"flush_threshold"`
	FlushBatchSize   int            `yaml:"flush_batch_size"`
	ItemsPerBatch    int            `yaml:"items_per_batch"`
	DefaultBatches   int            `yaml:"default_batches_per_mode"`
	BatchesPerMode   map[string]int `yaml:"batches_per_mode"`
	SweepIntervalSec int            `yaml:"sweep_interval_sec"`
	BackgroundLimit  int            `yaml:"background_limit"`
}

// SelectionConfig holds candidate funnel settings.
type SelectionConfig struct {
	SlotCount         int     `yaml:"slot_count"`
	RescueRatio       float64 `yaml:"rescue_ratio"`
	ReviewRatio       float64 `yaml:"review_ratio"`
	VisualRescueBelow int     `yaml:"visual_rescue_below"`
	LogicRescueBelow  int     `yaml:"logic_rescue_below"`
}

// SessionConfig holds aggregation window settings.
type SessionConfig struct {
	WindowTTLSec      int `yaml:"window_ttl_sec"`
	IdleSec           int `yaml:"idle_sec"`
	SettleIntervalSec int `yaml:"settle_interval_sec"`
	StaleWindowSec    int `yaml:"stale_window_sec"`
	SettleParallelism int `yaml:"settle_parallelism"`
}

// QueueConfig holds replenishment job queue settings.
type QueueConfig struct {
	Name          string `yaml:"name"`
	Workers       int    `yaml:"workers"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BackoffBaseMs int    `yaml:"backoff_base_ms"`
	PollMs        int    `yaml:"poll_ms"`
}

// GeneratorConfig holds content generator settings.
type GeneratorConfig struct {
	APIKey     string       `yaml:"api_key"`
	BaseURL    string       `yaml:"base_url"`
	Model      string       `yaml:"model"`
	TimeoutSec int          `yaml:"timeout_sec"`
	Budget     BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds generator token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// SRSConfig holds scheduling algorithm parameters.
type SRSConfig struct {
	RequestRetention float64 `yaml:"request_retention"`
	MaximumInterval  float64 `yaml:"maximum_interval"`
}

// StorageConfig holds key naming settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded into the process environment first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Redis.Driver == "" {
		c.Redis.Driver = "valkey"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.SQL.Driver == "" {
		c.SQL.Driver = "postgres"
	}
	if c.SQL.MaxOpenConns <= 0 {
		c.SQL.MaxOpenConns = 10
	}

	if c.Inventory.LowWatermark <= 0 {
		c.Inventory.LowWatermark = 3
	}
	if c.Inventory.FlushThreshold <= 0 {
		c.Inventory.FlushThreshold = 5
	}
	if c.Inventory.FlushBatchSize <= 0 {
		c.Inventory.FlushBatchSize = 10
	}
	if c.Inventory.ItemsPerBatch <= 0 {
		c.Inventory.ItemsPerBatch = 10
	}
	if c.Inventory.DefaultBatches <= 0 {
		c.Inventory.DefaultBatches = 5
	}
	if c.Inventory.SweepIntervalSec <= 0 {
		c.Inventory.SweepIntervalSec = 30
	}
	if c.Inventory.BackgroundLimit <= 0 {
		c.Inventory.BackgroundLimit = 64
	}

	if c.Selection.SlotCount <= 0 {
		c.Selection.SlotCount = 20
	}
	if c.Selection.RescueRatio <= 0 {
		c.Selection.RescueRatio = 0.3
	}
	if c.Selection.ReviewRatio <= 0 {
		c.Selection.ReviewRatio = 0.5
	}
	if c.Selection.VisualRescueBelow <= 0 {
		c.Selection.VisualRescueBelow = 30
	}
	if c.Selection.LogicRescueBelow <= 0 {
		c.Selection.LogicRescueBelow = 20
	}

	if c.Session.WindowTTLSec <= 0 {
		c.Session.WindowTTLSec = 3600
	}
	if c.Session.IdleSec <= 0 {
		c.Session.IdleSec = 300
	}
	if c.Session.SettleIntervalSec <= 0 {
		c.Session.SettleIntervalSec = 60
	}
	if c.Session.StaleWindowSec <= 0 {
		c.Session.StaleWindowSec = 1800
	}
	if c.Session.SettleParallelism <= 0 {
		c.Session.SettleParallelism = 4
	}

	if c.Queue.Name == "" {
		c.Queue.Name = "drill-generation"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BackoffBaseMs <= 0 {
		c.Queue.BackoffBaseMs = 5000
	}
	if c.Queue.PollMs <= 0 {
		c.Queue.PollMs = 500
	}

	if c.Generator.Model == "" {
		c.Generator.Model = "gpt-4o-mini"
	}
	if c.Generator.TimeoutSec <= 0 {
		c.Generator.TimeoutSec = 60
	}
	if c.Generator.Budget.Action == "" {
		c.Generator.Budget.Action = "warn"
	}
	if c.SRS.RequestRetention <= 0 {
		c.SRS.RequestRetention = 0.9
	}
	if c.SRS.MaximumInterval <= 0 {
		c.SRS.MaximumInterval = 36500
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "lexdrill:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Redis.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("redis.driver must be \"valkey\" or \"redis\", got %q", c.Redis.Driver)
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	switch c.SQL.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("sql.driver must be \"postgres\" or \"sqlite\", got %q", c.SQL.Driver)
	}
	if c.SQL.DSN == "" {
		return fmt.Errorf("sql.dsn is required")
	}
	if c.Selection.RescueRatio+c.Selection.ReviewRatio > 1 {
		return fmt.Errorf(
			"selection.rescue_ratio + selection.review_ratio must not exceed 1, got %.2f",
			c.Selection.RescueRatio+c.Selection.ReviewRatio,
		)
	}
	switch c.Generator.Budget.Action {
	case "warn", "reject":
	default:
		return fmt.Errorf("generator.budget.action must be \"warn\" or \"reject\", got %q", c.Generator.Budget.Action)
	}
	if c.Generator.Budget.DailyTokenLimit < 0 || c.Generator.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("generator.budget limits must not be negative")
	}
	if c.SRS.RequestRetention >= 1 {
		return fmt.Errorf("srs.request_retention must be below 1, got %.2f", c.SRS.RequestRetention)
	}
	for mode, n := range c.Inventory.BatchesPerMode {
		if n <= 0 {
			return fmt.Errorf("inventory.batches_per_mode.%s must be positive, got %d", mode, n)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
