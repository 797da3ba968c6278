// Package config loads the local server configuration from a TOML file,
// an optional .env file and environment variables, in that order of
// increasing precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server holds HTTP listener settings.
type Server struct {
	Addr                   string `toml:"addr"`
	AllowedOrigin          string `toml:"allowed_origin"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// Storage locates the SQLite database and the blob directory.
type Storage struct {
	DataDir       string `toml:"data_dir"`
	DatabasePath  string `toml:"database_path"`
	BlobDir       string `toml:"blob_dir"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Gemini configures the staging and analysis models.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	ImageModel     string `toml:"image_model"`
	AnalysisModel  string `toml:"analysis_model"`
	AnalyzeUploads bool   `toml:"analyze_uploads"`
}

// Export configures MLS bundles.
type Export struct {
	Compression      string `toml:"compression"`
	URLExpiryMinutes int    `toml:"url_expiry_minutes"`
}

// Billing configures the payment webhook.
type Billing struct {
	WebhookSecret string `toml:"webhook_secret"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	EventBusName  string `toml:"event_bus_name"`
}

// Logging configures zerolog.
type Logging struct {
	Level string `toml:"level"`
}

// Config is the full local server configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Gemini  Gemini  `toml:"gemini"`
	Export  Export  `toml:"export"`
	Billing Billing `toml:"billing"`
	Logging Logging `toml:"logging"`
}

const (
	defaultAddr            = "127.0.0.1:8080"
	defaultAllowedOrigin   = "http://localhost:3000"
	defaultShutdownSeconds = 10
	defaultDataDir         = "~/.local/share/rooms-that-sell"
	defaultImageModel      = "gemini-3-pro-image-preview"
	defaultAnalysisModel   = "gemini-3-flash-preview"
	defaultCompression     = "deflate"
	defaultURLExpiry       = 60
	defaultLogLevel        = "info"
)

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Server: Server{
			Addr:                   defaultAddr,
			AllowedOrigin:          defaultAllowedOrigin,
			ShutdownTimeoutSeconds: defaultShutdownSeconds,
		},
		Storage: Storage{DataDir: defaultDataDir},
		Gemini: Gemini{
			ImageModel:    defaultImageModel,
			AnalysisModel: defaultAnalysisModel,
		},
		Export: Export{
			Compression:      defaultCompression,
			URLExpiryMinutes: defaultURLExpiry,
		},
		Logging: Logging{Level: defaultLogLevel},
	}
}

// SampleConfig returns the commented sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// Load reads path (a missing file is not an error), applies .env and
// environment overrides, fills derived paths and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteSample writes the sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(sampleConfig); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ShutdownTimeout is the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// URLExpiry is the lifetime of export download links.
func (c *Config) URLExpiry() time.Duration {
	return time.Duration(c.Export.URLExpiryMinutes) * time.Minute
}

func (c *Config) normalize() error {
	dataDir, err := ExpandPath(c.Storage.DataDir)
	if err != nil {
		return err
	}
	c.Storage.DataDir = dataDir

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(dataDir, "stager.db")
	} else if c.Storage.DatabasePath, err = ExpandPath(c.Storage.DatabasePath); err != nil {
		return err
	}
	if c.Storage.BlobDir == "" {
		c.Storage.BlobDir = filepath.Join(dataDir, "blobs")
	} else if c.Storage.BlobDir, err = ExpandPath(c.Storage.BlobDir); err != nil {
		return err
	}
	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = "http://" + c.Server.Addr + "/blobs"
	}
	c.Storage.PublicBaseURL = strings.TrimRight(c.Storage.PublicBaseURL, "/")

	c.Export.Compression = strings.ToLower(strings.TrimSpace(c.Export.Compression))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// ExpandPath resolves a leading ~ and makes p absolute.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
