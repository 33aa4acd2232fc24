package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets have no defaults in code and must come from config.json, .env or the environment.
type AppConfig struct {
	AppPort        string
	JWTSecret      string
	InternalAPIKey string
	// Middleware
	RateLimitPerMinute int
	AllowedOrigins     []string
	MetricsEnabled     bool
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database: mysql, postgres or memory
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching, notifications and the reset lock; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Gamification
	StreakTimezone       string
	StreakResetEnabled   bool
	StreakResetAt        string
	StatsCacheTTLSeconds int
	// Notifications: redis or log
	NotifySink        string
	NotifyWorkers     int
	NotifyQueueSize   int
	NotifyMaxAttempts int
	NotifyChannel     string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	c, err := LoadFrom(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// LoadFrom builds a configuration without caching it.
// Precedence: JSON file -> defaults -> .env -> environment variables.
func LoadFrom(path string) (AppConfig, error) {
	var c AppConfig
	// unset boolean switches default to on
	c.StreakResetEnabled = true
	c.MetricsEnabled = true

	if err := loadJSONConfig(path, &c); err != nil {
		return c, fmt.Errorf("read %s: %w", path, err)
	}
	applyDefaults(&c)

	// .env never overrides variables already present in the environment
	_ = godotenv.Load()
	applyEnvOverrides(&c)

	return c, c.Validate()
}

// Validate reports settings the service cannot start with.
func (c AppConfig) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.InternalAPIKey == "" {
		errs = append(errs, errors.New("INTERNAL_API_KEY must be set"))
	}
	switch c.DBDriver {
	case "mysql", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if _, err := time.LoadLocation(c.StreakTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", c.StreakTimezone, err))
	}
	if _, err := time.Parse("15:04", c.StreakResetAt); err != nil {
		errs = append(errs, fmt.Errorf("invalid STREAK_RESET_AT %q", c.StreakResetAt))
	}
	switch c.NotifySink {
	case "redis", "log":
	default:
		errs = append(errs, fmt.Errorf("unsupported NOTIFY_SINK %q", c.NotifySink))
	}
	return errors.Join(errs...)
}

// Location is the canonical timezone for calendar days.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RedisEnabled reports whether a Redis host is configured.
func (c AppConfig) RedisEnabled() bool {
	return c.RedisHost != ""
}

// StatsCacheTTL is the lifetime of cached user stats.
func (c AppConfig) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads the grouped JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string, dst *bool) {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				*dst = b
			}
		}
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.InternalAPIKey = getString(app, "InternalAPIKey")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		getBool(app, "MetricsEnabled", &out.MetricsEnabled)
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		getBool(lg, "Compress", &out.LogCompress)
	}

	if gm, ok := raw["gamification"].(map[string]any); ok {
		if v := getString(gm, "StreakTimezone"); v != "" {
			out.StreakTimezone = v
		}
		getBool(gm, "StreakResetEnabled", &out.StreakResetEnabled)
		if v := getString(gm, "StreakResetAt"); v != "" {
			out.StreakResetAt = v
		}
		if v := getInt(gm, "StatsCacheTTLSeconds"); v != 0 {
			out.StatsCacheTTLSeconds = v
		}
	}

	if nt, ok := raw["notify"].(map[string]any); ok {
		if v := getString(nt, "Sink"); v != "" {
			out.NotifySink = v
		}
		if v := getInt(nt, "Workers"); v != 0 {
			out.NotifyWorkers = v
		}
		if v := getInt(nt, "QueueSize"); v != 0 {
			out.NotifyQueueSize = v
		}
		if v := getInt(nt, "MaxAttempts"); v != 0 {
			out.NotifyMaxAttempts = v
		}
		if v := getString(nt, "Channel"); v != "" {
			out.NotifyChannel = v
		}
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		} else {
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "mindhaven"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.StreakTimezone == "" {
		c.StreakTimezone = "UTC"
	}
	if c.StreakResetAt == "" {
		c.StreakResetAt = "00:05"
	}
	if c.StatsCacheTTLSeconds == 0 {
		c.StatsCacheTTLSeconds = 300
	}
	if c.NotifySink == "" {
		c.NotifySink = "redis"
	}
	if c.NotifyWorkers == 0 {
		c.NotifyWorkers = 4
	}
	if c.NotifyQueueSize == 0 {
		c.NotifyQueueSize = 256
	}
	if c.NotifyMaxAttempts == 0 {
		c.NotifyMaxAttempts = 3
	}
	if c.NotifyChannel == "" {
		c.NotifyChannel = "gamification:events"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("INTERNAL_API_KEY", ""); v != "" {
		c.InternalAPIKey = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("METRICS_ENABLED", ""); v != "" {
		c.MetricsEnabled = v == "true"
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("STREAK_TIMEZONE", ""); v != "" {
		c.StreakTimezone = v
	}
	if v := getEnv("STREAK_RESET_ENABLED", ""); v != "" {
		c.StreakResetEnabled = v == "true"
	}
	if v := getEnv("STREAK_RESET_AT", ""); v != "" {
		c.StreakResetAt = v
	}
	if v := getEnv("STATS_CACHE_TTL_SECONDS", ""); v != "" {
		c.StatsCacheTTLSeconds = mustParseInt(v)
	}
	if v := getEnv("NOTIFY_SINK", ""); v != "" {
		c.NotifySink = v
	}
	if v := getEnv("NOTIFY_WORKERS", ""); v != "" {
		c.NotifyWorkers = mustParseInt(v)
	}
	if v := getEnv("NOTIFY_QUEUE_SIZE", ""); v != "" {
		c.NotifyQueueSize = mustParseInt(v)
	}
	if v := getEnv("NOTIFY_MAX_ATTEMPTS", ""); v != "" {
		c.NotifyMaxAttempts = mustParseInt(v)
	}
	if v := getEnv("NOTIFY_CHANNEL", ""); v != "" {
		c.NotifyChannel = v
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
