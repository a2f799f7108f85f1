package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret = "default_super_secret_key" // development fallback only
	defaultJWTExpiry = 7 * 24 * time.Hour
)

// Config is the full runtime configuration, read from the environment
type Config struct {
	Env        string
	Port       string
	Auth       AuthConfig
	Database   DatabaseConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	RateLimit  RateLimitConfig
	Bootstrap  BootstrapConfig
}

type AuthConfig struct {
	JWTSecret    string
	JWTExpiresIn time.Duration
	CookieSecure bool
}

type DatabaseConfig struct {
	URL                string // empty = local sqlite file
	SSL                bool
	SQLitePath         string
	SlowQueryThreshold time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type HTTPConfig struct {
	CORSOrigins    []string
	UploadMaxBytes int64
}

type StorageConfig struct {
	Driver         string // minio | local
	LocalDir       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	PresignExpiry  time.Duration
}

type ExtractionConfig struct {
	APIURL      string
	APIKey      string
	Model       string
	MaxAttempts int
	Timeout     time.Duration
}

type RateLimitConfig struct {
	Requests      int
	Window        time.Duration
	LoginRequests int
}

type BootstrapConfig struct {
	SuperAdminEmail    string
	SuperAdminPassword string
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:  getEnv("GIN_MODE", "debug"),
		Port: getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			URL:        os.Getenv("DATABASE_URL"),
			SSL:        getBool("DATABASE_SSL", false),
			SQLitePath: getEnv("SQLITE_PATH", "backoffice.db"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		HTTP: HTTPConfig{
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		},
		Storage: StorageConfig{
			Driver:         getEnv("STORAGE_DRIVER", "local"),
			LocalDir:       getEnv("UPLOAD_DIR", "uploads"),
			MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinioBucket:    getEnv("MINIO_BUCKET", "processing-documents"),
			MinioUseSSL:    getBool("MINIO_USE_SSL", false),
		},
		Extraction: ExtractionConfig{
			APIURL: os.Getenv("EXTRACTION_API_URL"),
			APIKey: os.Getenv("EXTRACTION_API_KEY"),
			Model:  getEnv("EXTRACTION_MODEL", "document-extractor"),
		},
		Bootstrap: BootstrapConfig{
			SuperAdminEmail:    os.Getenv("SUPER_ADMIN_EMAIL"),
			SuperAdminPassword: os.Getenv("SUPER_ADMIN_PASSWORD"),
		},
	}

	var err error
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET environment variable is required in release mode")
		}
		cfg.Auth.JWTSecret = defaultJWTSecret
	}
	if cfg.Auth.JWTExpiresIn, err = ParseExpiry(getEnv("JWT_EXPIRES_IN", "7d")); err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}
	cfg.Auth.CookieSecure = getBool("COOKIE_SECURE", cfg.IsProduction())

	if cfg.Database.SlowQueryThreshold, err = parseMillisOrDuration(getEnv("SLOW_QUERY_THRESHOLD", "200")); err != nil {
		return nil, fmt.Errorf("invalid SLOW_QUERY_THRESHOLD: %w", err)
	}
	if cfg.HTTP.UploadMaxBytes, err = getInt64("UPLOAD_MAX_BYTES", 20<<20); err != nil {
		return nil, err
	}
	if cfg.Storage.PresignExpiry, err = time.ParseDuration(getEnv("STORAGE_PRESIGN_EXPIRY", "15m")); err != nil {
		return nil, fmt.Errorf("invalid STORAGE_PRESIGN_EXPIRY: %w", err)
	}

	maxAttempts, err := getInt64("EXTRACTION_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cfg.Extraction.MaxAttempts = int(maxAttempts)
	if cfg.Extraction.Timeout, err = time.ParseDuration(getEnv("EXTRACTION_TIMEOUT", "60s")); err != nil {
		return nil, fmt.Errorf("invalid EXTRACTION_TIMEOUT: %w", err)
	}

	requests, err := getInt64("RATE_LIMIT_REQUESTS", 300)
	if err != nil {
		return nil, err
	}
	loginRequests, err := getInt64("RATE_LIMIT_LOGIN_REQUESTS", 10)
	if err != nil {
		return nil, err
	}
	cfg.RateLimit.Requests = int(requests)
	cfg.RateLimit.LoginRequests = int(loginRequests)
	if cfg.RateLimit.Window, err = time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "1m")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	if cfg.Storage.Driver != "local" && cfg.Storage.Driver != "minio" {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	return cfg, nil
}

// IsProduction reports whether gin runs in release mode
func (c *Config) IsProduction() bool {
	return c.Env == "release"
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// DSN returns the postgres DSN with sslmode applied when the URL does not set it
func (c DatabaseConfig) DSN() string {
	if c.URL == "" || strings.Contains(c.URL, "sslmode=") {
		return c.URL
	}
	mode := "disable"
	if c.SSL {
		mode = "require"
	}
	sep := "?"
	if strings.Contains(c.URL, "?") {
		sep = "&"
	}
	return c.URL + sep + "sslmode=" + mode
}

// ParseExpiry accepts Go durations ("168h") plus a day suffix ("7d")
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultJWTExpiry, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("bad day count in %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %q", s)
	}
	return d, nil
}

// parseMillisOrDuration treats bare integers as milliseconds
func parseMillisOrDuration(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
