package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for all services
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Session  SessionConfig  `toml:"session"`
	Jobs     JobsConfig     `toml:"jobs"`
	Registry RegistryConfig `toml:"registry"`
	Redis    RedisConfig    `toml:"redis"`
	History  HistoryConfig  `toml:"history"`
	Database DatabaseConfig `toml:"database"`
	Tools    ToolsConfig    `toml:"tools"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `toml:"host"`
	Port         int           `toml:"port"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
}

// StorageConfig holds the session blob store configuration
type StorageConfig struct {
	Type          string   `toml:"type"` // local
	UploadsPath   string   `toml:"uploads_path"`
	MaxUploadSize int64    `toml:"max_upload_size"`
	AllowedTypes  []string `toml:"allowed_types"`
}

// SessionConfig controls session expiry and the cleanup sweeper
type SessionConfig struct {
	Timeout            time.Duration `toml:"timeout"`
	SweepInterval      time.Duration `toml:"sweep_interval"`
	TerminalMultiplier int           `toml:"terminal_multiplier"`
}

// JobsConfig controls background tool execution
type JobsConfig struct {
	ToolTimeout   time.Duration `toml:"tool_timeout"`
	MaxConcurrent int           `toml:"max_concurrent"`
}

// RegistryConfig selects the session registry backing store
type RegistryConfig struct {
	Backend   string `toml:"backend"` // memory, redis
	KeyPrefix string `toml:"key_prefix"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// HistoryConfig selects where finished jobs are recorded
type HistoryConfig struct {
	Driver string `toml:"driver"` // none, sqlite, postgres
	DSN    string `toml:"dsn"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

// ToolsConfig holds the external binaries invoked by the tools
type ToolsConfig struct {
	Ghostscript string `toml:"ghostscript"`
	LibreOffice string `toml:"libreoffice"`
	ImageMagick string `toml:"imagemagick"`
	Chromium    string `toml:"chromium"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json, text
}

// DefaultAllowedTypes mirrors the upload filter of the browser tools.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"image/jpeg",
	"image/png",
	"text/html",
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// Load reads an optional TOML file and then applies environment overrides.
// An empty path behaves like LoadFromEnv.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		Storage: StorageConfig{
			Type:          "local",
			UploadsPath:   "./uploads",
			MaxUploadSize: 100 * 1024 * 1024,
			AllowedTypes:  append([]string(nil), DefaultAllowedTypes...),
		},
		Session: SessionConfig{
			Timeout:            time.Hour,
			TerminalMultiplier: 2,
		},
		Jobs: JobsConfig{
			ToolTimeout:   5 * time.Minute,
			MaxConcurrent: 4,
		},
		Registry: RegistryConfig{
			Backend:   "memory",
			KeyPrefix: "docdesk:session:",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		History: HistoryConfig{
			Driver: "sqlite",
			DSN:    "file::memory:?cache=shared",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "docdesk",
			DBName:  "docdesk",
			SSLMode: "disable",
		},
		Tools: ToolsConfig{
			Ghostscript: "gs",
			LibreOffice: "soffice",
			ImageMagick: "magick",
			Chromium:    "chromium",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)

	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.UploadsPath = getEnv("STORAGE_UPLOADS_PATH", cfg.Storage.UploadsPath)
	cfg.Storage.MaxUploadSize = getEnvInt64("UPLOAD_MAX_SIZE", cfg.Storage.MaxUploadSize)
	cfg.Storage.AllowedTypes = getEnvList("UPLOAD_ALLOWED_TYPES", cfg.Storage.AllowedTypes)

	cfg.Session.Timeout = getEnvDuration("SESSION_TIMEOUT", cfg.Session.Timeout)
	cfg.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", cfg.Session.SweepInterval)
	cfg.Session.TerminalMultiplier = getEnvInt("SESSION_TERMINAL_MULTIPLIER", cfg.Session.TerminalMultiplier)
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = cfg.Session.Timeout / 2
	}

	cfg.Jobs.ToolTimeout = getEnvDuration("TOOL_TIMEOUT", cfg.Jobs.ToolTimeout)
	cfg.Jobs.MaxConcurrent = getEnvInt("JOBS_MAX_CONCURRENT", cfg.Jobs.MaxConcurrent)

	cfg.Registry.Backend = getEnv("REGISTRY_BACKEND", cfg.Registry.Backend)
	cfg.Registry.KeyPrefix = getEnv("REGISTRY_KEY_PREFIX", cfg.Registry.KeyPrefix)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.History.Driver = getEnv("HISTORY_DRIVER", cfg.History.Driver)
	cfg.History.DSN = getEnv("HISTORY_DSN", cfg.History.DSN)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Tools.Ghostscript = getEnv("TOOL_GHOSTSCRIPT", cfg.Tools.Ghostscript)
	cfg.Tools.LibreOffice = getEnv("TOOL_LIBREOFFICE", cfg.Tools.LibreOffice)
	cfg.Tools.ImageMagick = getEnv("TOOL_IMAGEMAGICK", cfg.Tools.ImageMagick)
	cfg.Tools.Chromium = getEnv("TOOL_CHROMIUM", cfg.Tools.Chromium)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Storage.UploadsPath == "" {
		return fmt.Errorf("storage uploads path must be set")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.Storage.MaxUploadSize)
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.Session.SweepInterval <= 0 || c.Session.SweepInterval >= c.Session.Timeout {
		return fmt.Errorf("sweep interval must be positive and shorter than the session timeout")
	}
	if c.Session.TerminalMultiplier < 1 {
		return fmt.Errorf("terminal multiplier must be at least 1")
	}
	if c.Jobs.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent jobs must be at least 1")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SetupLogging configures the global zerolog logger
func (l LoggingConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if l.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
