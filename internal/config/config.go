package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Data backends
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
	BackendRemote = "remote"
)

// Config holds application configuration
type Config struct {
	// Server settings
	ListenAddr      string        `json:"listen_addr"`
	Debug           bool          `json:"debug"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	MaxUploadBytes  int64         `json:"max_upload_bytes"`

	// Backend selection
	DataBackend string `json:"data_backend"`

	// Directories
	DataDirectory    string `json:"data_directory"`
	UploadsDirectory string `json:"uploads_directory"`
	SQLiteDBPath     string `json:"sqlite_db_path"`

	// Remote API
	RemoteBaseURL    string        `json:"remote_base_url"`
	AnalyticsEnabled bool          `json:"analytics_enabled"`
	RemoteTimeout    time.Duration `json:"remote_timeout"`
	RemoteRetries    int           `json:"remote_retries"`

	// Paging through transaction sources
	PageSize int `json:"page_size"`
	MaxPages int `json:"max_pages"`

	// Passphrase unlocks an encrypted uploads directory at startup
	Passphrase string `json:"-"`

	SentryDSN         string `json:"-"`
	SentryEnvironment string `json:"sentry_environment"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Config{
		ListenAddr:        ":8080",
		ShutdownTimeout:   10 * time.Second,
		AllowedOrigins:    []string{"*"},
		MaxUploadBytes:    10 << 20,
		DataBackend:       BackendFiles,
		DataDirectory:     filepath.Join(wd, "data"),
		UploadsDirectory:  filepath.Join(wd, "data", "uploads"),
		SQLiteDBPath:      filepath.Join(wd, "data", "spendscope.db"),
		AnalyticsEnabled:  true,
		RemoteTimeout:     15 * time.Second,
		RemoteRetries:     2,
		PageSize:          200,
		MaxPages:          50,
		SentryEnvironment: "production",
	}
}

// Load reads a .env file if present, then applies SPEND_* environment
// overrides on top of the defaults
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv applies SPEND_* environment overrides to the defaults
func FromEnv() *Config {
	cfg := DefaultConfig()

	cfg.ListenAddr = getEnv("SPEND_LISTEN_ADDR", cfg.ListenAddr)
	cfg.Debug = getEnvBool("SPEND_DEBUG", cfg.Debug)
	cfg.ShutdownTimeout = getEnvDuration("SPEND_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if origins := os.Getenv("SPEND_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	cfg.MaxUploadBytes = int64(getEnvInt("SPEND_MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))

	cfg.DataBackend = strings.ToLower(getEnv("SPEND_DATA_BACKEND", cfg.DataBackend))

	if dataDir := os.Getenv("SPEND_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
		cfg.UploadsDirectory = filepath.Join(dataDir, "uploads")
		cfg.SQLiteDBPath = filepath.Join(dataDir, "spendscope.db")
	}
	cfg.UploadsDirectory = getEnv("SPEND_UPLOADS_DIR", cfg.UploadsDirectory)
	cfg.SQLiteDBPath = getEnv("SPEND_SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.RemoteBaseURL = getEnv("SPEND_REMOTE_BASE_URL", cfg.RemoteBaseURL)
	cfg.AnalyticsEnabled = getEnvBool("SPEND_ANALYTICS_ENABLED", cfg.AnalyticsEnabled)
	cfg.RemoteTimeout = getEnvDuration("SPEND_REMOTE_TIMEOUT", cfg.RemoteTimeout)
	cfg.RemoteRetries = getEnvInt("SPEND_REMOTE_RETRIES", cfg.RemoteRetries)

	cfg.PageSize = getEnvInt("SPEND_PAGE_SIZE", cfg.PageSize)
	cfg.MaxPages = getEnvInt("SPEND_MAX_PAGES", cfg.MaxPages)

	cfg.Passphrase = os.Getenv("SPEND_PASSPHRASE")
	cfg.SentryDSN = os.Getenv("SPEND_SENTRY_DSN")
	cfg.SentryEnvironment = getEnv("SPEND_SENTRY_ENVIRONMENT", cfg.SentryEnvironment)

	return cfg
}

// Validate validates the configuration and returns all problems at once
func (c *Config) Validate() error {
	var errors []string

	if c.ListenAddr == "" {
		errors = append(errors, "listen address cannot be empty")
	}

	validBackends := []string{BackendFiles, BackendSQLite, BackendRemote}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendFiles:
		if c.UploadsDirectory == "" {
			errors = append(errors, "uploads directory cannot be empty when using files backend")
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendRemote:
		if c.RemoteBaseURL == "" {
			errors = append(errors, "SPEND_REMOTE_BASE_URL is required when using remote backend")
		}
	}

	if c.RemoteBaseURL != "" {
		if parsed, err := url.Parse(c.RemoteBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid remote base URL '%s': %v", c.RemoteBaseURL, err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid remote base URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
		}
	}

	if c.RemoteRetries < 0 || c.RemoteRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid remote retries %d: must be between 0 and 10", c.RemoteRetries))
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be between 1 and 1000", c.PageSize))
	}
	if c.MaxPages < 1 {
		errors = append(errors, fmt.Sprintf("invalid max pages %d: must be at least 1", c.MaxPages))
	}
	if c.MaxUploadBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadBytes))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// UseBackendAnalytics reports whether spending patterns come from the remote API
func (c *Config) UseBackendAnalytics() bool {
	return c.AnalyticsEnabled && c.RemoteBaseURL != ""
}

// EnsureDirectories creates the data directories the chosen backend writes to
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDirectory}
	switch c.DataBackend {
	case BackendFiles:
		dirs = append(dirs, c.UploadsDirectory)
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.SQLiteDBPath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
