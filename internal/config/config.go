package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port int

	MongoURI string
	DBName   string

	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenSecret string
	RefreshTokenExpiry time.Duration

	CORSOrigins []string

	Redis RedisConfig

	RateLimit RateLimitConfig

	OTELEndpoint string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig bounds requests against the credential endpoints
// (register/login/refresh) per client IP.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)

	return Config{
		Env:  env,
		Port: port,

		MongoURI: getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		DBName:   getEnv("DB_NAME", "accounts"),

		AccessTokenSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
		AccessTokenExpiry:  getEnvDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
		RefreshTokenExpiry: getEnvDuration("REFRESH_TOKEN_EXPIRY", 10*24*time.Hour),

		CORSOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Limit:   getEnvInt("RATE_LIMIT_MAX", 20),
			Window:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},

		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Validate rejects configs that cannot possibly serve traffic. Token
// secrets have no sane default.
func (c Config) Validate() error {
	if c.AccessTokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}
	if c.RefreshTokenSecret == "" {
		return fmt.Errorf("REFRESH_TOKEN_SECRET is required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	return nil
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			return fallback
		}

		return b
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("15m", "240h") and, for
// compatibility with older deployments, bare integers meaning days ("10").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)

	if v == "" {
		return fallback
	}

	if d, err := time.ParseDuration(v); err == nil {
		return d
	}

	if days, err := strconv.Atoi(v); err == nil {
		return time.Duration(days) * 24 * time.Hour
	}

	return fallback
}
