package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("STAGER_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != defaultAddr {
		t.Errorf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "stager.db") {
		t.Errorf("unexpected database path %s", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.BlobDir != filepath.Join(dir, "blobs") {
		t.Errorf("unexpected blob dir %s", cfg.Storage.BlobDir)
	}
	if cfg.Storage.PublicBaseURL != "http://"+defaultAddr+"/blobs" {
		t.Errorf("unexpected public base URL %s", cfg.Storage.PublicBaseURL)
	}
	if cfg.URLExpiry().Minutes() != defaultURLExpiry {
		t.Errorf("unexpected expiry %v", cfg.URLExpiry())
	}
}

func TestLoad_FileThenDotEnvThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "stager.toml", `
[server]
addr = "0.0.0.0:9000"

[storage]
data_dir = "`+filepath.ToSlash(dir)+`"
public_base_url = "https://cdn.example.com/media/"

[export]
compression = "ZSTD"

[billing]
redis_addr = "file-redis:6379"
`)
	writeFile(t, dir, ".env", "REDIS_ADDR=dotenv-redis:6379\nBILLING_WEBHOOK_SECRET=whsec_dotenv\n")
	t.Setenv("REDIS_ADDR", "env-redis:6379")
	t.Cleanup(func() { os.Unsetenv("BILLING_WEBHOOK_SECRET") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("file value lost: %s", cfg.Server.Addr)
	}
	if cfg.Export.Compression != "zstd" {
		t.Errorf("compression not normalized: %s", cfg.Export.Compression)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example.com/media" {
		t.Errorf("trailing slash not trimmed: %s", cfg.Storage.PublicBaseURL)
	}
	if cfg.Billing.RedisAddr != "env-redis:6379" {
		t.Errorf("process env should win, got %s", cfg.Billing.RedisAddr)
	}
	if cfg.Billing.WebhookSecret != "whsec_dotenv" {
		t.Errorf(".env value not applied, got %q", cfg.Billing.WebhookSecret)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "bad.toml", "[server\naddr = ")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Storage.DatabasePath = "/tmp/stager.db"
		c.Storage.BlobDir = "/tmp/blobs"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad addr", func(c *Config) { c.Server.Addr = "localhost" }, "server.addr"},
		{"zero shutdown", func(c *Config) { c.Server.ShutdownTimeoutSeconds = 0 }, "shutdown_timeout"},
		{"no model", func(c *Config) { c.Gemini.ImageModel = "" }, "gemini.image_model"},
		{"bad compression", func(c *Config) { c.Export.Compression = "brotli" }, "export.compression"},
		{"expiry too long", func(c *Config) { c.Export.URLExpiryMinutes = maxURLExpiryMinutes + 1 }, "url_expiry_minutes"},
		{"negative redis db", func(c *Config) { c.Billing.RedisDB = -1 }, "redis_db"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnv_IgnoresBadNumbers(t *testing.T) {
	c := Default()
	env := map[string]string{"REDIS_DB": "two", "EXPORT_URL_EXPIRY_MINUTES": "15", "GEMINI_API_KEY": "  key  "}
	c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if c.Billing.RedisDB != 0 || c.Export.URLExpiryMinutes != 15 || c.Gemini.APIKey != "key" {
		t.Errorf("unexpected overrides: %+v %+v %+v", c.Billing, c.Export, c.Gemini)
	}
}

func TestSampleConfigParses(t *testing.T) {
	c := Default()
	if err := toml.Unmarshal([]byte(SampleConfig()), &c); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if c.Export.Compression != "deflate" || c.Server.Addr != defaultAddr {
		t.Errorf("sample disagrees with defaults: %+v", c)
	}
}

func TestWriteSample_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "stager.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected error on second write")
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/stager/config.toml")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "stager", "config.toml"); got != want {
		t.Errorf("ExpandPath(~/...) = %q, want %q", got, want)
	}

	got, err = ExpandPath("rel/../data")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) || !strings.HasSuffix(got, string(filepath.Separator)+"data") {
		t.Errorf("ExpandPath(rel) = %q, want absolute path ending in data", got)
	}

	if got, _ := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %q, want empty", got)
	}
}
