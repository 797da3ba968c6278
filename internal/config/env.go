package config

import (
	"strconv"
	"strings"
)

type lookupFunc func(key string) (string, bool)

// applyEnv overrides file values with any set environment variables.
func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	str("STAGER_ADDR", &c.Server.Addr)
	str("STAGER_ALLOWED_ORIGIN", &c.Server.AllowedOrigin)
	str("STAGER_DATA_DIR", &c.Storage.DataDir)
	str("STAGER_LOG_LEVEL", &c.Logging.Level)
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GEMINI_IMAGE_MODEL", &c.Gemini.ImageModel)
	str("EXPORT_COMPRESSION", &c.Export.Compression)
	num("EXPORT_URL_EXPIRY_MINUTES", &c.Export.URLExpiryMinutes)
	str("BILLING_WEBHOOK_SECRET", &c.Billing.WebhookSecret)
	str("REDIS_ADDR", &c.Billing.RedisAddr)
	str("REDIS_PASSWORD", &c.Billing.RedisPassword)
	num("REDIS_DB", &c.Billing.RedisDB)
	str("EVENT_BUS_NAME", &c.Billing.EventBusName)
}
