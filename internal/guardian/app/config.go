package app

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/pkg/jwtx"
)

// Token store backends.
const (
	TokenStoreSQLite = "sqlite"
	TokenStoreRedis  = "redis"
)

type Config struct {
	Issuer string // Issuer claim for tokens (default: guardian)
	Realm  string // Realm quoted in WWW-Authenticate challenges (default: guardian)

	Algorithm  string // JWT signing algorithm (HS256, RS256) (default: HS256)
	SecretKey  string // HS256 shared secret (required for HS256)
	RSAKeyPath string // Path to PEM-encoded RSA private key (required for RS256)

	AccessTTL         time.Duration // Access token lifetime (default: 2h)
	RefreshTTL        time.Duration // Refresh token lifetime (default: 720h)
	ReuseAccessToken  bool          // Return an active token instead of minting (default: false)
	IssueRefreshToken bool          // Issue refresh tokens alongside access tokens (default: true)

	EnabledGrants []string // Grant types the token endpoint accepts

	TokenStore string // Where access-token records live (sqlite, redis) (default: sqlite)
	RedisAddr  string // Redis address (required when TokenStore is redis)

	DatabaseFile string // Path to SQLite database file (default: ./guardian.db)
	PepperFile   string // Path to the password hashing pepper file (default: ./pepper)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired record cleanup interval (default: 1h)
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is folded in first when present.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Issuer: getEnvOrDefault("GUARDIAN_ISSUER", "guardian"),
		Realm:  getEnvOrDefault("GUARDIAN_REALM", "guardian"),

		Algorithm:  getEnvOrDefault("GUARDIAN_ALGORITHM", "HS256"),
		SecretKey:  os.Getenv("GUARDIAN_SECRET_KEY"),
		RSAKeyPath: os.Getenv("GUARDIAN_RSA_KEY_PATH"),

		AccessTTL:         getEnvDurationOrDefault("GUARDIAN_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:        getEnvDurationOrDefault("GUARDIAN_REFRESH_TTL", 30*24*time.Hour),
		ReuseAccessToken:  getEnvBoolOrDefault("GUARDIAN_REUSE_ACCESS_TOKEN", false),
		IssueRefreshToken: getEnvBoolOrDefault("GUARDIAN_ISSUE_REFRESH_TOKEN", true),

		EnabledGrants: strings.Fields(getEnvOrDefault(
			"GUARDIAN_ENABLED_GRANTS",
			"password assertion refresh_token",
		)),

		TokenStore: getEnvOrDefault("GUARDIAN_TOKEN_STORE", TokenStoreSQLite),
		RedisAddr:  os.Getenv("GUARDIAN_REDIS_ADDR"),

		DatabaseFile: getEnvOrDefault("GUARDIAN_DATABASE_FILE", "guardian.db"),
		PepperFile:   getEnvOrDefault("GUARDIAN_PEPPER_FILE", "pepper"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate rejects configurations the service cannot start with. Errors here
// are fatal; nothing is half-started on a bad config.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("config: issuer must not be empty")
	}

	switch c.Algorithm {
	case "HS256":
		if c.SecretKey == "" {
			return fmt.Errorf("config: HS256 requires GUARDIAN_SECRET_KEY")
		}
	case "RS256":
		if c.RSAKeyPath == "" {
			return fmt.Errorf("config: RS256 requires GUARDIAN_RSA_KEY_PATH")
		}
	default:
		return fmt.Errorf("config: unknown signing algorithm %q", c.Algorithm)
	}

	if c.AccessTTL <= 0 {
		return fmt.Errorf("config: access token ttl must be positive, got %s", c.AccessTTL)
	}
	if c.IssueRefreshToken && c.RefreshTTL <= 0 {
		return fmt.Errorf("config: refresh token ttl must be positive, got %s", c.RefreshTTL)
	}

	if len(c.EnabledGrants) == 0 {
		return fmt.Errorf("config: at least one grant type must be enabled")
	}
	for _, g := range c.EnabledGrants {
		if _, ok := domain.KnownGrantTypes[domain.GrantType(g)]; !ok {
			return fmt.Errorf("config: unknown grant type %q", g)
		}
	}

	switch c.TokenStore {
	case TokenStoreSQLite:
	case TokenStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: redis token store requires GUARDIAN_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown token store %q", c.TokenStore)
	}

	return nil
}

// EnabledGrantSet returns the enabled grants as the lookup set the engine
// gates on.
func (c Config) EnabledGrantSet() map[domain.GrantType]struct{} {
	set := make(map[domain.GrantType]struct{}, len(c.EnabledGrants))
	for _, g := range c.EnabledGrants {
		set[domain.GrantType(g)] = struct{}{}
	}
	return set
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	warnBadEnvValue(key, value, strconv.Itoa(defaultValue))
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	warnBadEnvValue(key, value, strconv.FormatBool(defaultValue))
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are taken as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	warnBadEnvValue(key, value, defaultValue.String())
	return defaultValue
}

// warnBadEnvValue flags a set-but-unparseable environment value. Only
// numeric, boolean and duration knobs come through here, so logging the
// value is safe.
func warnBadEnvValue(key, value, fallback string) {
	slog.Warn("ignoring unparseable environment value",
		slog.String("key", key),
		slog.String("value", value),
		slog.String("fallback", fallback),
	)
}
