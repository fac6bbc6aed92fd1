// Package config loads application settings from environment variables and
// provides them to the rest of the process.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// Security settings
	SessionSecret string // hex-encoded 32-byte key for session sealing
	SessionCookie string // cookie name carrying the sealed session
	SessionTTLMin int    // session lifetime in minutes
	LockoutMax    int    // failed attempts before an account is locked
	LockoutMin    int    // lockout duration in minutes
	DefaultTenant string // tenant assumed when a login omits one

	// Server settings
	Port    string // API server port
	GinMode string // gin run mode (debug, release, test)

	// CORS settings
	CORSAllowedOrigins string // allowed origins, comma separated

	// Storage settings
	DatabasePath string // SQLite database file for the account store

	// Gatekeeper settings
	ProtectedPrefixes string // path prefixes requiring a session, comma separated

	// Throttle settings
	ThrottleRedisURL string // redis URL for the login IP throttle; empty disables it
	ThrottleMax      int    // login attempts per IP per window
	ThrottleWindow   int    // throttle window in minutes
}

// Load reads the configuration from environment variables.
// A .env.local file is consulted first when present.
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionCookie: getEnv("SESSION_COOKIE", "tl_session"),
		SessionTTLMin: getEnvAsInt("SESSION_TTL_MINUTES", 10),
		LockoutMax:    getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 3),
		LockoutMin:    getEnvAsInt("LOCKOUT_DURATION_MINUTES", 5),
		DefaultTenant: getEnv("DEFAULT_TENANT", "default"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		DatabasePath: getEnv("DATABASE_PATH", "time-ledger.db"),

		ProtectedPrefixes: getEnv("PROTECTED_PREFIXES", "/app"),

		ThrottleRedisURL: getEnv("THROTTLE_REDIS_URL", ""),
		ThrottleMax:      getEnvAsInt("THROTTLE_MAX_ATTEMPTS", 20),
		ThrottleWindow:   getEnvAsInt("THROTTLE_WINDOW_MINUTES", 5),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required in release mode")
		}
	}

	if c.SessionSecret != "" {
		if _, err := c.SealingKey(); err != nil {
			return err
		}
	}

	if c.LockoutMax <= 0 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be positive")
	}
	if c.LockoutMin <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION_MINUTES must be positive")
	}
	if c.SessionTTLMin <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}

	return nil
}

// SealingKey decodes SESSION_SECRET into the 32-byte key used by the
// session sealer.
func (c *Config) SealingKey() ([]byte, error) {
	key, err := hex.DecodeString(c.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("SESSION_SECRET must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SESSION_SECRET must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ProtectedPrefixList splits the configured protected prefixes.
func (c *Config) ProtectedPrefixList() []string {
	var prefixes []string
	for _, p := range strings.Split(c.ProtectedPrefixes, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// getEnv returns the environment variable or a default when unset.
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt returns the environment variable parsed as an integer.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
