package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	KeysJSON  string // Optional: {"kid":"secret"} map of HMAC keys
	Secret    string // Optional: single fallback secret, registered as kid "default"
	ActiveKID string // Optional: kid used to sign new tokens (default: "default")

	Issuer     string        // Issuer claim (default: purple-team-app)
	Audience   string        // Audience claim (default: purple-team-clients)
	AccessTTL  time.Duration // Access token lifetime (default: 1h)
	RefreshTTL time.Duration // Refresh token lifetime (default: 30 days)
	ClockSkew  time.Duration // Leeway for exp/nbf/iat (default: 90s)

	StoreTimeout       time.Duration // Per-call deadline for KV and database calls (default: 2s)
	RedisURL           string        // Optional: empty selects the in-process KV
	MemoryKVMaxEntries int           // Bound for the in-process KV (default: 100000)
	RefreshScope       string        // subject or session (default: subject)

	AuditFailurePolicy string // log or retry (default: log)
	AuditRetries       int    // Extra attempts under the retry policy (default: 3)
	AuditQueueSize     int    // Writer queue depth (default: 256)
	AuditAsync         bool   // Return before the entry is persisted (default: false)

	DatabaseFile     string // Path to SQLite database file (default: ./session.db)
	PepperFile       string // Path to file containing pepper for password hashing (default: ./pepper)
	MFAEnforceAdmin  bool   // Require TOTP on admin logins (default: false)
	AllowAdminSignup bool   // Let /v1/auth/register create admins (default: false)
	MetricsToken     string // Optional: /metrics is closed when empty

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Audit chain check interval (default: 1h)
}

// LoadConfig reads the environment, after loading a .env file if one exists.
// Variables already set in the environment win over the file.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		KeysJSON:  os.Getenv("JWT_KEYS_JSON"),
		Secret:    os.Getenv("JWT_SECRET"),
		ActiveKID: os.Getenv("ACTIVE_JWT_KID"),

		Issuer:     getEnvOrDefault("JWT_ISS", "purple-team-app"),
		Audience:   getEnvOrDefault("JWT_AUD", "purple-team-clients"),
		AccessTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		ClockSkew:  getEnvDurationOrDefault("CLOCK_SKEW", 90*time.Second),

		StoreTimeout:       getEnvDurationOrDefault("STORE_TIMEOUT", 2*time.Second),
		RedisURL:           os.Getenv("REDIS_URL"),
		MemoryKVMaxEntries: getEnvIntOrDefault("MEMORY_KV_MAX_ENTRIES", 100_000),
		RefreshScope:       getEnvOrDefault("REFRESH_SCOPE", "subject"),

		AuditFailurePolicy: getEnvOrDefault("AUDIT_FAILURE_POLICY", "log"),
		AuditRetries:       getEnvIntOrDefault("AUDIT_RETRIES", 3),
		AuditQueueSize:     getEnvIntOrDefault("AUDIT_QUEUE_SIZE", 256),
		AuditAsync:         getEnvBoolOrDefault("AUDIT_ASYNC", false),

		DatabaseFile:     getEnvOrDefault("DATABASE_FILE", "session.db"),
		PepperFile:       getEnvOrDefault("PEPPER_FILE", "pepper"),
		MFAEnforceAdmin:  getEnvBoolOrDefault("MFA_ENFORCE_ADMIN", false),
		AllowAdminSignup: getEnvBoolOrDefault("ALLOW_ADMIN_SIGNUP", false),
		MetricsToken:     os.Getenv("METRICS_TOKEN"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
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

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
