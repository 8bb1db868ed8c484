package core

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
	Name             string `yaml:"name"`
}

type Notifier struct {
	Type string `yaml:"type"`
}

type BlobStore struct {
	Type   string `yaml:"type"`
	Path   string `yaml:"path"`
	Folder string `yaml:"folder"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Session struct {
	TTL time.Duration `yaml:"ttl"`
}

type RateLimit struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Window      time.Duration `yaml:"window"`
}

type UI struct {
	CopyIndicatorDuration time.Duration `yaml:"copyIndicatorDuration"`
	ThumbnailWidth        int           `yaml:"thumbnailWidth"`
	ThumbnailCacheTTL     time.Duration `yaml:"thumbnailCacheTTL"`
	DashboardIdleTimeout  time.Duration `yaml:"dashboardIdleTimeout"`
}

// Cloudinary credentials only come from the environment.
type Cloudinary struct {
	CloudName string `yaml:"-"`
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

type ServiceConfig struct {
	Port            int        `yaml:"port"`
	PublicURL       string     `yaml:"publicURL"`
	LogLevel        string     `yaml:"logLevel"`
	Database        Database   `yaml:"database"`
	Notifier        Notifier   `yaml:"notifier"`
	BlobStore       BlobStore  `yaml:"blobStore"`
	Redis           Redis      `yaml:"redis"`
	Session         Session    `yaml:"session"`
	SigninRateLimit RateLimit  `yaml:"signinRateLimit"`
	UI              UI         `yaml:"ui"`
	Cloudinary      Cloudinary `yaml:"-"`
}

// LoadConfig loads configuration from the specified YAML file, applies
// environment overrides and defaults, and validates the result.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *ServiceConfig) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Port = p
	}
	c.Redis.URL = getEnv("REDIS_URI", c.Redis.URL)
	c.Database.ConnectionString = getEnv("DATABASE_CONNECTION_STRING", c.Database.ConnectionString)
	c.Cloudinary = Cloudinary{
		CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
	}
	return nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "refshelf.db"
	}
	if c.Notifier.Type == "" {
		c.Notifier.Type = "memory"
	}
	if c.BlobStore.Type == "" {
		c.BlobStore.Type = "local"
	}
	if c.BlobStore.Type == "local" && c.BlobStore.Path == "" {
		c.BlobStore.Path = "data/blobs"
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 7 * 24 * time.Hour
	}
	if c.SigninRateLimit.MaxAttempts == 0 {
		c.SigninRateLimit.MaxAttempts = 10
	}
	if c.SigninRateLimit.Window == 0 {
		c.SigninRateLimit.Window = 2 * time.Minute
	}
	if c.UI.CopyIndicatorDuration == 0 {
		c.UI.CopyIndicatorDuration = DefaultCopyIndicatorDuration
	}
	if c.UI.ThumbnailWidth == 0 {
		c.UI.ThumbnailWidth = 480
	}
	if c.UI.ThumbnailCacheTTL == 0 {
		c.UI.ThumbnailCacheTTL = 24 * time.Hour
	}
	if c.UI.DashboardIdleTimeout == 0 {
		c.UI.DashboardIdleTimeout = 24 * time.Hour
	}
}

// Validate checks that the configuration describes a runnable setup.
func (c *ServiceConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Database.Type {
	case "sqlite", "postgres", "mongodb":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connection string is required for %s", c.Database.Type)
	}

	switch c.Notifier.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported notifier type: %s", c.Notifier.Type)
	}

	switch c.BlobStore.Type {
	case "local":
	case "cloudinary":
		if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
			return fmt.Errorf("cloudinary blob store requires CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
		}
	default:
		return fmt.Errorf("unsupported blob store type: %s", c.BlobStore.Type)
	}

	if c.Session.TTL < 0 || c.SigninRateLimit.Window < 0 || c.SigninRateLimit.MaxAttempts < 0 {
		return fmt.Errorf("session ttl and sign in rate limit must not be negative")
	}
	if c.UI.CopyIndicatorDuration < 0 || c.UI.ThumbnailWidth < 0 || c.UI.ThumbnailCacheTTL < 0 || c.UI.DashboardIdleTimeout < 0 {
		return fmt.Errorf("ui settings must not be negative")
	}
	return nil
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
}
