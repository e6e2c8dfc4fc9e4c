package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Admin
	AdminUserIDs string
	AdminToken   string

	// Server
	Port        string
	CORSOrigins string
	AppEnv      string
	SentryDSN   string

	// Event feed: "local" keeps fan-out in-process, "postgres" bridges
	// instances through LISTEN/NOTIFY.
	EventBroadcast string

	// Avatar storage (S3-compatible). Uploads are disabled when AvatarBucket is empty.
	AvatarBucket          string
	AvatarEndpoint        string
	AvatarRegion          string
	AvatarAccessKeyID     string
	AvatarSecretAccessKey string
	AvatarPublicURL       string
	AvatarMaxBytes        int64

	// Engine tunables
	PolicyPath string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "vouch"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "720h"), 720*time.Hour),

		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		AppEnv:      getEnv("APP_ENV", "development"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		EventBroadcast: getEnv("EVENT_BROADCAST", "local"),

		AvatarBucket:          getEnv("AVATAR_BUCKET", ""),
		AvatarEndpoint:        getEnv("AVATAR_ENDPOINT", ""),
		AvatarRegion:          getEnv("AVATAR_REGION", "auto"),
		AvatarAccessKeyID:     getEnv("AVATAR_ACCESS_KEY_ID", ""),
		AvatarSecretAccessKey: getEnv("AVATAR_SECRET_ACCESS_KEY", ""),
		AvatarPublicURL:       getEnv("AVATAR_PUBLIC_URL", ""),
		AvatarMaxBytes:        parseInt64(getEnv("AVATAR_MAX_BYTES", "5242880"), 5<<20),

		PolicyPath: getEnv("POLICY_PATH", "policy.yaml"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt64(s string, fallback int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
