package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Report   ReportConfig
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Telegram TelegramConfig
	Slack    SlackConfig
	Log      LogConfig

	// Warnings are non-fatal findings from validation. They are collected
	// rather than logged so the caller can log them after applying Log.
	Warnings []string
}

// ReportConfig controls the report zone, label and daily delivery.
type ReportConfig struct {
	TZ         string
	Location   *time.Location
	Label      string
	Hour       int
	Minute     int
	Recipients []string
	// AdminOnly restricts bot commands to the Telegram chats and Slack
	// channels among Recipients.
	AdminOnly bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	WebhookRPS      float64
	WebhookBurst    int
	APIToken        string //nolint:gosec // G117: API bearer token config
	APIJWTSecret    string //nolint:gosec // G117: JWT signing secret config

	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// StoreConfig selects the event store backend.
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables the live feed.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// TelegramConfig holds bot settings. An empty token runs the bot in dry mode.
type TelegramConfig struct {
	BotToken    string //nolint:gosec // G117: bot token config
	PollTimeout int
}

// SlackConfig holds Slack integration settings.
// An empty SigningSecret disables the inbound command endpoints.
type SlackConfig struct {
	BotToken      string //nolint:gosec // G117: bot token config
	SigningSecret string //nolint:gosec // G117: request signing secret config
	AppCommand    string
}

// LogConfig holds zerolog settings.
type LogConfig struct {
	Level  string
	Format string
}

// LoadDotEnv loads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config.LoadDotEnv: %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	hour, err := getEnvInt("SUBTRACK_REPORT_HOUR", 9)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	minute, err := getEnvInt("SUBTRACK_REPORT_MINUTE", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	adminOnly, err := getEnvBool("SUBTRACK_BOT_ADMIN_ONLY", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("SUBTRACK_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("SUBTRACK_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	shutdownTimeout, err := getEnvDuration("SUBTRACK_SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	webhookRPS, err := getEnvFloat("SUBTRACK_WEBHOOK_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	webhookBurst, err := getEnvInt("SUBTRACK_WEBHOOK_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	trustProxy, err := getEnvBool("SUBTRACK_SERVER_TRUST_PROXY", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("SUBTRACK_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("SUBTRACK_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("SUBTRACK_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pollTimeout, err := getEnvInt("SUBTRACK_TELEGRAM_POLL_TIMEOUT", 30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Report: ReportConfig{
			TZ:         getEnv("SUBTRACK_REPORT_TZ", "Europe/Moscow"),
			Label:      getEnv("SUBTRACK_REPORT_LABEL", "Subscriptions"),
			Hour:       hour,
			Minute:     minute,
			Recipients: getEnvList("SUBTRACK_REPORT_RECIPIENTS", nil),
			AdminOnly:  adminOnly,
		},
		Server: ServerConfig{
			Addr:            getEnv("SUBTRACK_SERVER_ADDR", ":10000"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			CORSOrigins:     getEnvList("SUBTRACK_CORS_ORIGINS", nil),
			WebhookRPS:      webhookRPS,
			WebhookBurst:    webhookBurst,
			TrustProxy:      trustProxy,
			APIToken:        getEnv("SUBTRACK_API_TOKEN", ""),
			APIJWTSecret:    getEnv("SUBTRACK_API_JWT_SECRET", ""),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("SUBTRACK_STORE_DRIVER", DriverSQLite)),
			SQLitePath: getEnv("SUBTRACK_SQLITE_PATH", "subs.db"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("SUBTRACK_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("SUBTRACK_DB_USER", "subtrack"),
			Password: getEnv("SUBTRACK_DB_PASSWORD", ""),
			DBName:   getEnv("SUBTRACK_DB_NAME", "subtrack"),
			SSLMode:  getEnv("SUBTRACK_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("SUBTRACK_REDIS_ADDR", ""),
			Password: getEnv("SUBTRACK_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Telegram: TelegramConfig{
			BotToken:    getEnv("SUBTRACK_TELEGRAM_BOT_TOKEN", ""),
			PollTimeout: pollTimeout,
		},
		Slack: SlackConfig{
			BotToken:      getEnv("SUBTRACK_SLACK_BOT_TOKEN", ""),
			SigningSecret: getEnv("SUBTRACK_SLACK_SIGNING_SECRET", ""),
			AppCommand:    getEnv("SUBTRACK_SLACK_APP_COMMAND", "/subtrack"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("SUBTRACK_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("SUBTRACK_LOG_FORMAT", "json")),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds, and resolves the report zone.
func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.Report.TZ)
	if err != nil {
		return fmt.Errorf("SUBTRACK_REPORT_TZ=%q: %w", c.Report.TZ, err)
	}
	c.Report.Location = loc

	if c.Report.Hour < 0 || c.Report.Hour > 23 {
		return fmt.Errorf("SUBTRACK_REPORT_HOUR must be 0-23, got %d", c.Report.Hour)
	}
	if c.Report.Minute < 0 || c.Report.Minute > 59 {
		return fmt.Errorf("SUBTRACK_REPORT_MINUTE must be 0-59, got %d", c.Report.Minute)
	}
	if len(c.Report.Recipients) == 0 {
		c.warn("SUBTRACK_REPORT_RECIPIENTS is empty; the daily report will not be delivered")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SUBTRACK_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("SUBTRACK_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("SUBTRACK_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
		if c.Database.SSLMode == "disable" {
			c.warn("SUBTRACK_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
	default:
		return fmt.Errorf("SUBTRACK_STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("SUBTRACK_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("SUBTRACK_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SUBTRACK_SERVER_SHUTDOWN_TIMEOUT must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Server.WebhookRPS <= 0 {
		return fmt.Errorf("SUBTRACK_WEBHOOK_RPS must be positive, got %g", c.Server.WebhookRPS)
	}
	if c.Server.WebhookBurst < 1 {
		return fmt.Errorf("SUBTRACK_WEBHOOK_BURST must be >= 1, got %d", c.Server.WebhookBurst)
	}
	if c.Server.APIJWTSecret != "" && len(c.Server.APIJWTSecret) < 32 {
		return errors.New("SUBTRACK_API_JWT_SECRET must be at least 32 characters")
	}
	if c.Server.APIToken == "" && c.Server.APIJWTSecret == "" {
		c.warn("SUBTRACK_API_TOKEN and SUBTRACK_API_JWT_SECRET are empty; the report API is unauthenticated")
	}
	if c.Slack.SigningSecret != "" && !strings.HasPrefix(c.Slack.AppCommand, "/") {
		return fmt.Errorf("SUBTRACK_SLACK_APP_COMMAND must start with '/', got %q", c.Slack.AppCommand)
	}
	if c.Slack.SigningSecret != "" && c.Slack.BotToken == "" {
		c.warn("SUBTRACK_SLACK_BOT_TOKEN is empty; Slack mentions will be acknowledged but not answered")
	}
	if c.Telegram.PollTimeout < 1 {
		return fmt.Errorf("SUBTRACK_TELEGRAM_POLL_TIMEOUT must be >= 1, got %d", c.Telegram.PollTimeout)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("SUBTRACK_LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}

	return nil
}

func (c *Config) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// TelegramChatIDs returns the numeric Telegram chat IDs among the report recipients.
func (c *ReportConfig) TelegramChatIDs() []int64 {
	var ids []int64
	for _, r := range c.Recipients {
		platform, id, found := strings.Cut(r, ":")
		if !found {
			id = platform
		} else if !strings.EqualFold(strings.TrimSpace(platform), "telegram") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// SlackChannelIDs returns the Slack channel IDs among the report recipients.
func (c *ReportConfig) SlackChannelIDs() []string {
	var ids []string
	for _, r := range c.Recipients {
		platform, id, found := strings.Cut(r, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(platform), "slack") {
			continue
		}
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
