package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; empty means SQLite
	SQLitePath  string
	RedisURL    string // optional; enables rate limiting

	TokenSecret []byte        // HMAC signing key for session tokens
	TokenTTL    time.Duration // short-lived API tokens
	SessionTTL  time.Duration // cookie-bound sessions
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present and generates an
// ephemeral token secret when none is configured. In production, it panics
// on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/parley.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		TokenTTL:    getDuration("TOKEN_TTL", 15*time.Minute),
		SessionTTL:  getDuration("SESSION_TTL", 31*24*time.Hour),
	}

	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		cfg.TokenSecret = []byte(secret)
	} else {
		if cfg.Env == "production" {
			panic("TOKEN_SECRET is required in production")
		}
		// Ephemeral secret: sessions do not survive a development restart.
		cfg.TokenSecret = randomSecret()
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("failed to generate token secret: " + err.Error())
	}
	return []byte(hex.EncodeToString(buf))
}
