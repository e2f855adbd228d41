package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. KEEPSAKE_HTTP_PORT.
const EnvPrefix = "KEEPSAKE"

// Config holds application configuration.
type Config struct {
	// DBDriver selects the store backend: "sqlite" (default) or "postgres".
	DBDriver string `json:"db_driver,omitempty" envconfig:"DB_DRIVER"`

	// PostgresDSN is required when DBDriver is "postgres".
	PostgresDSN string `json:"postgres_dsn,omitempty" envconfig:"POSTGRES_DSN"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" envconfig:"DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" envconfig:"DB_MAX_IDLE_CONNS"`

	// StoreTimeoutMs bounds every store call. A call that exceeds it reports
	// an unknown outcome rather than a failure.
	StoreTimeoutMs int `json:"store_timeout_ms,omitempty" envconfig:"STORE_TIMEOUT_MS"`

	HTTPBind string `json:"http_bind,omitempty" envconfig:"HTTP_BIND"`
	HTTPPort int    `json:"http_port,omitempty" envconfig:"HTTP_PORT"`

	// PublicBaseURL prefixes share links. Defaults to http://<bind>:<port>.
	PublicBaseURL string `json:"public_base_url,omitempty" envconfig:"PUBLIC_BASE_URL"`

	// SweepIntervalSeconds is the unlock scheduler tick period.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty" envconfig:"SWEEP_INTERVAL_SECONDS"`
	SweepBatchSize       int `json:"sweep_batch_size,omitempty" envconfig:"SWEEP_BATCH_SIZE"`

	MaxTitleChars int `json:"max_title_chars,omitempty" envconfig:"MAX_TITLE_CHARS"`
	MaxBodyChars  int `json:"max_body_chars,omitempty" envconfig:"MAX_BODY_CHARS"`

	// ShareQuotaPerDay caps share tokens issued per owner in any rolling 24h.
	ShareQuotaPerDay int `json:"share_quota_per_day,omitempty" envconfig:"SHARE_QUOTA_PER_DAY"`

	// ShareCacheSeconds is the max-age sent with public share responses.
	ShareCacheSeconds int `json:"share_cache_seconds,omitempty" envconfig:"SHARE_CACHE_SECONDS"`

	// PublicRateRPS and PublicRateBurst throttle the public share endpoint per client IP.
	PublicRateRPS   float64 `json:"public_rate_rps,omitempty" envconfig:"PUBLIC_RATE_RPS"`
	PublicRateBurst int     `json:"public_rate_burst,omitempty" envconfig:"PUBLIC_RATE_BURST"`

	// RetentionDays is how long withdrawn capsules are kept before the
	// retention job purges them. 0 disables purging.
	RetentionDays int    `json:"retention_days,omitempty" envconfig:"RETENTION_DAYS"`
	RetentionCron string `json:"retention_cron,omitempty" envconfig:"RETENTION_CRON"`

	// LogLevel is a zerolog level name.
	LogLevel string `json:"log_level,omitempty" envconfig:"LOG_LEVEL"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// All tools are enabled by default. Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" envconfig:"DISABLED_TOOLS"`

	// DisabledTypes is a list of type names to disable entirely.
	// All tools belonging to disabled types are excluded from registration.
	// Known types: "capsule", "share", "connection". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty" envconfig:"DISABLED_TYPES"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBDriver:             "sqlite",
		StoreTimeoutMs:       5000,
		HTTPBind:             "127.0.0.1",
		HTTPPort:             8080,
		SweepIntervalSeconds: 60,
		SweepBatchSize:       100,
		MaxTitleChars:        120,
		MaxBodyChars:         20000,
		ShareQuotaPerDay:     5,
		ShareCacheSeconds:    30,
		PublicRateRPS:        2,
		PublicRateBurst:      10,
		RetentionCron:        "0 3 * * *",
		LogLevel:             "info",
	}
}

// SweepInterval returns the scheduler tick period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// StoreTimeout returns the per-call store deadline.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMs) * time.Millisecond
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// BaseURL returns PublicBaseURL without a trailing slash, falling back to
// the listen address.
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://" + c.Addr()
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("db_driver postgres requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unsupported db_driver %q (want sqlite or postgres)", c.DBDriver)
	}
	if c.RetentionDays < 0 {
		return errors.New("retention_days must not be negative")
	}
	if c.RetentionDays > 0 && !gronx.IsValid(c.RetentionCron) {
		return fmt.Errorf("invalid retention_cron %q", c.RetentionCron)
	}
	if c.ShareQuotaPerDay < 0 {
		return errors.New("share_quota_per_day must not be negative")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.keepsake.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.keepsake) and repo (.keepsake) directories,
// then applies KEEPSAKE_* environment overrides.
// Repo config is found by walking upward from startDir to find the nearest .keepsake/config.json.
// Repo config takes precedence over global for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	env, err := FromEnv()
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo, then environment
	return Merge(Merge(Merge(DefaultConfig(), global), repo), env), nil
}

// FromEnv reads KEEPSAKE_* overrides. Unset variables stay zero so they
// do not clobber file values when merged.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .keepsake/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".keepsake", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		DBDriver:             pick(overlay.DBDriver, base.DBDriver),
		PostgresDSN:          pick(overlay.PostgresDSN, base.PostgresDSN),
		DBMaxOpenConns:       pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:       pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		StoreTimeoutMs:       pick(overlay.StoreTimeoutMs, base.StoreTimeoutMs),
		HTTPBind:             pick(overlay.HTTPBind, base.HTTPBind),
		HTTPPort:             pick(overlay.HTTPPort, base.HTTPPort),
		PublicBaseURL:        pick(overlay.PublicBaseURL, base.PublicBaseURL),
		SweepIntervalSeconds: pick(overlay.SweepIntervalSeconds, base.SweepIntervalSeconds),
		SweepBatchSize:       pick(overlay.SweepBatchSize, base.SweepBatchSize),
		MaxTitleChars:        pick(overlay.MaxTitleChars, base.MaxTitleChars),
		MaxBodyChars:         pick(overlay.MaxBodyChars, base.MaxBodyChars),
		ShareQuotaPerDay:     pick(overlay.ShareQuotaPerDay, base.ShareQuotaPerDay),
		ShareCacheSeconds:    pick(overlay.ShareCacheSeconds, base.ShareCacheSeconds),
		PublicRateRPS:        pick(overlay.PublicRateRPS, base.PublicRateRPS),
		PublicRateBurst:      pick(overlay.PublicRateBurst, base.PublicRateBurst),
		RetentionDays:        pick(overlay.RetentionDays, base.RetentionDays),
		RetentionCron:        pick(overlay.RetentionCron, base.RetentionCron),
		LogLevel:             pick(overlay.LogLevel, base.LogLevel),

		DisabledTools: mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		DisabledTypes: mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes),
	}
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
