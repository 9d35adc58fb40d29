package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is missing")
	ErrMissingAuthKey     = errors.New("AUTH_KEY (JWT secret) is missing")
)

type RateLimit struct {
	Burst  int
	Refill time.Duration
}

type Log struct {
	Level  string
	Format string
	File   string
}

type Config struct {
	DatabaseURL string
	Port        string
	Env         string
	AuthKey     string
	Host        string

	RedisURL    string
	NodeID      string
	PresenceTTL time.Duration

	AllowedOrigins []string
	AllowAnonymous bool
	MaxMessageSize int64
	RateLimit      RateLimit

	Log Log

	// Notes collects fallbacks applied while loading so they can be logged
	// once a logger exists.
	Notes []string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	var notes []string
	if err := godotenv.Load(); err != nil {
		notes = append(notes, "no .env file found, relying on system environment variables")
	}

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("APP_ENV", "development"),
		AuthKey:        getEnv("AUTH_KEY", ""),
		Host:           getEnv("HOST", "localhost"),
		RedisURL:       getEnv("REDIS_URL", ""),
		NodeID:         getEnv("NODE_ID", ""),
		PresenceTTL:    getDuration("PRESENCE_TTL", 2*time.Minute, &notes),
		AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		AllowAnonymous: getBool("ALLOW_ANONYMOUS", false, &notes),
		MaxMessageSize: int64(getInt("MAX_MESSAGE_SIZE", 4096, &notes)),
		RateLimit: RateLimit{
			Burst:  getInt("RATE_LIMIT_BURST", 10, &notes),
			Refill: getDuration("RATE_LIMIT_REFILL", 500*time.Millisecond, &notes),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
	}
	cfg.Notes = notes

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.AuthKey == "" {
		return nil, ErrMissingAuthKey
	}
	return cfg, nil
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int, notes *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		*notes = append(*notes, "invalid "+key+"="+raw+", using default")
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, notes *[]string) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*notes = append(*notes, "invalid "+key+"="+raw+", using default")
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("750ms") or plain seconds ("2").
func getDuration(key string, defaultValue time.Duration, notes *[]string) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	*notes = append(*notes, "invalid "+key+"="+raw+", using default")
	return defaultValue
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskDBSource hides credentials in a postgres DSN before it is logged.
func MaskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
