package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var ErrNoBotToken = errors.New("BOT_TOKEN is not set")

// devJWTSecret signs admin tokens when JWT_SECRET is unset. The bot and the
// web admin must agree on it for /weblogin links to work.
const devJWTSecret = "clothshop-development-jwt-secret"

type Config struct {
	BotToken               string
	AdminIDs               []int64
	OrdersChannelID        int64
	NotificationsChannelID int64

	DBDriver  string
	DBPath    string
	DBHost    string
	DBPort    string
	DBUser    string
	DBPass    string
	DBName    string
	DBSSLMode string

	StaticPath       string
	FallbackCurrency string
	FallbackRate     float64

	Port              string
	SessionKey        []byte
	CSRFKey           []byte
	JWTSecret         []byte
	AdminPasswordHash string
	CookieSecure      bool
	WebBaseURL        string

	LogLevel slog.Level
}

// Load reads .env from the working directory when present and then the
// process environment. It does not check bot-only settings, see ValidateBot.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		BotToken:          os.Getenv("BOT_TOKEN"),
		DBDriver:          getEnv("DB_DRIVER", "sqlite"),
		DBPath:            getEnv("DB_PATH", "shop.db"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            os.Getenv("DB_USER"),
		DBPass:            os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		StaticPath:        getEnv("STATIC_PATH", "static"),
		FallbackCurrency:  getEnv("FALLBACK_CURRENCY", "BYN"),
		Port:              getEnv("PORT", "5000"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		CookieSecure:      getEnv("COOKIE_SECURE", "false") == "true",
		WebBaseURL:        strings.TrimRight(getEnv("WEB_BASE_URL", "http://localhost:5000"), "/"),
		SessionKey:        []byte(os.Getenv("SESSION_KEY")),
		CSRFKey:           []byte(os.Getenv("CSRF_KEY")),
		JWTSecret:         []byte(os.Getenv("JWT_SECRET")),
	}

	var err error
	if cfg.AdminIDs, err = parseIDList(os.Getenv("ADMIN_ID")); err != nil {
		return nil, fmt.Errorf("ADMIN_ID: %w", err)
	}
	if cfg.OrdersChannelID, err = parseOptionalID(os.Getenv("ORDERS_CHANNEL_ID")); err != nil {
		return nil, fmt.Errorf("ORDERS_CHANNEL_ID: %w", err)
	}
	if cfg.NotificationsChannelID, err = parseOptionalID(os.Getenv("NOTIFICATIONS_CHANNEL_ID")); err != nil {
		return nil, fmt.Errorf("NOTIFICATIONS_CHANNEL_ID: %w", err)
	}
	if cfg.FallbackRate, err = strconv.ParseFloat(getEnv("FALLBACK_RATE", "0.037"), 64); err != nil {
		return nil, fmt.Errorf("FALLBACK_RATE: %w", err)
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "INFO"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver)
	}

	return cfg, nil
}

// ValidateBot reports settings the bot cannot start without.
func (c *Config) ValidateBot() error {
	if c.BotToken == "" {
		return ErrNoBotToken
	}
	if len(c.AdminIDs) == 0 {
		slog.Warn("ADMIN_ID is empty, moderator actions are disabled")
	}
	if c.OrdersChannelID == 0 {
		slog.Warn("ORDERS_CHANNEL_ID is empty, orders go to operators directly")
	}
	if len(c.JWTSecret) == 0 {
		slog.Warn("JWT_SECRET not set, web login links use a development secret")
		c.JWTSecret = []byte(devJWTSecret)
	}
	return nil
}

// ValidateWeb fills development defaults for the web keys and warns about them.
func (c *Config) ValidateWeb() error {
	if len(c.SessionKey) < 32 {
		slog.Warn("SESSION_KEY not set or shorter than 32 bytes, using a development key")
		c.SessionKey = []byte("clothshop-development-session-key")
	}
	if len(c.CSRFKey) != 32 {
		slog.Warn("CSRF_KEY must be 32 bytes, using a development key")
		c.CSRFKey = []byte("clothshop-dev-csrf-key-32-bytes!")
	}
	if len(c.JWTSecret) == 0 {
		slog.Warn("JWT_SECRET not set, admin sessions use a development secret")
		c.JWTSecret = []byte(devJWTSecret)
	}
	if c.AdminPasswordHash == "" {
		slog.Warn("ADMIN_PASSWORD_HASH not set, password login is disabled")
	}
	return nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
