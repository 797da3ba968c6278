package config

import (
	"errors"
	"fmt"
	"net"
)

// maxURLExpiryMinutes is the presigned URL ceiling (7 days).
const maxURLExpiryMinutes = 7 * 24 * 60

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr %q: %w", c.Server.Addr, err)
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return errors.New("server.shutdown_timeout_seconds must be positive")
	}
	if c.Storage.DatabasePath == "" || c.Storage.BlobDir == "" {
		return errors.New("storage.data_dir must be set")
	}
	if c.Gemini.ImageModel == "" || c.Gemini.AnalysisModel == "" {
		return errors.New("gemini.image_model and gemini.analysis_model must be set")
	}
	switch c.Export.Compression {
	case "deflate", "zstd":
	default:
		return fmt.Errorf("export.compression must be deflate or zstd, got %q", c.Export.Compression)
	}
	if c.Export.URLExpiryMinutes < 1 || c.Export.URLExpiryMinutes > maxURLExpiryMinutes {
		return fmt.Errorf("export.url_expiry_minutes must be between 1 and %d", maxURLExpiryMinutes)
	}
	if c.Billing.RedisDB < 0 {
		return errors.New("billing.redis_db must not be negative")
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
