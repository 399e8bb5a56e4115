package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	RendererPDF       = "pdf"
	RendererGotenberg = "gotenberg"
	RendererNone      = "none"
)

type Config struct {
	// Server
	Port        string
	Environment string
	BaseURL     string
	LogLevel    string

	// Storage
	DataRoot     string
	SessionsRoot string
	ReportsRoot  string

	// Lifecycle
	SessionTTL        time.Duration
	CleanupInterval   time.Duration
	RenderConcurrency int

	// Renderer
	Renderer     string
	GotenbergURL string

	// Database
	DatabaseURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseReportsBucket string

	// S3 / MinIO
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
}

func Load() (*Config, error) {
	dataRoot := getEnv("REPORTR_DATA_ROOT", "data")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DataRoot:     dataRoot,
		SessionsRoot: getEnv("REPORTR_SESSIONS_ROOT", filepath.Join(dataRoot, "sessions")),
		ReportsRoot:  getEnv("REPORTR_REPORTS_ROOT", filepath.Join(dataRoot, "reports")),

		Renderer:     getEnv("REPORTR_RENDERER", RendererPDF),
		GotenbergURL: getEnv("GOTENBERG_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseReportsBucket: getEnv("SUPABASE_REPORTS_BUCKET", "reports"),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
	}

	var err error
	if cfg.SessionTTL, err = parseDuration("REPORTR_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = parseDuration("REPORTR_CLEANUP_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RenderConcurrency, err = parseInt("REPORTR_RENDER_CONCURRENCY", 3); err != nil {
		return nil, err
	}
	if cfg.S3UseSSL, err = parseBool("S3_USE_SSL", true); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionsRoot == "" || c.ReportsRoot == "" {
		return fmt.Errorf("REPORTR_SESSIONS_ROOT and REPORTR_REPORTS_ROOT must not be empty")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("REPORTR_SESSION_TTL must not be negative")
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("REPORTR_CLEANUP_INTERVAL must not be negative")
	}
	if c.RenderConcurrency < 1 {
		return fmt.Errorf("REPORTR_RENDER_CONCURRENCY must be at least 1")
	}
	switch c.Renderer {
	case RendererPDF, RendererNone:
	case RendererGotenberg:
		if c.GotenbergURL == "" {
			return fmt.Errorf("GOTENBERG_URL is required when REPORTR_RENDERER=gotenberg")
		}
	default:
		return fmt.Errorf("REPORTR_RENDERER must be one of pdf, gotenberg, none (got %q)", c.Renderer)
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3Bucket == "") {
		return fmt.Errorf("S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET are required when S3_ENDPOINT is set")
	}
	return nil
}

// CleanupEnabled reports whether expired sessions should be swept at all.
func (c *Config) CleanupEnabled() bool {
	return c.SessionTTL > 0 && c.CleanupInterval > 0
}

func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func (c *Config) S3Enabled() bool {
	return c.S3Endpoint != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return b, nil
}
