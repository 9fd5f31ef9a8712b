package portal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dppd-rp/portal/token"
	"github.com/redis/go-redis/v9"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.Lifetime != 24*time.Hour || cfg.Session.RefreshThreshold != 4*time.Hour {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Permission.CacheTTL != 60*time.Second {
		t.Fatalf("unexpected cache ttl %v", cfg.Permission.CacheTTL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "threshold shorter than lifetime",
			mutate:    func(c *Config) { c.Session.RefreshThreshold = time.Hour },
			wantValid: true,
		},
		{
			name:      "threshold not shorter than lifetime",
			mutate:    func(c *Config) { c.Session.RefreshThreshold = c.Session.Lifetime },
			wantValid: false,
		},
		{
			name:      "insecure cookie in production",
			mutate:    func(c *Config) { c.Cookie.Secure = false },
			wantValid: false,
		},
		{
			name: "insecure cookie in development",
			mutate: func(c *Config) {
				c.Environment = token.EnvDevelopment
				c.Cookie.Secure = false
			},
			wantValid: true,
		},
		{
			name:      "admin username without hash",
			mutate:    func(c *Config) { c.Admin.Username = "chief" },
			wantValid: false,
		},
		{
			name:      "partial discord config",
			mutate:    func(c *Config) { c.Discord.ClientID = "client" },
			wantValid: false,
		},
		{
			name: "device binding without detectors",
			mutate: func(c *Config) {
				c.DeviceBinding.DetectIPChange = false
				c.DeviceBinding.DetectUserAgentChange = false
			},
			wantValid: false,
		},
		{
			name: "device binding disabled ignores detectors",
			mutate: func(c *Config) {
				c.DeviceBinding.Enabled = false
				c.DeviceBinding.DetectIPChange = false
				c.DeviceBinding.DetectUserAgentChange = false
			},
			wantValid: true,
		},
		{
			name:      "zero login attempts",
			mutate:    func(c *Config) { c.Security.MaxLoginAttempts = 0 },
			wantValid: false,
		},
		{
			name:      "unknown audit sink",
			mutate:    func(c *Config) { c.Audit.Sink = "kafka" },
			wantValid: false,
		},
		{
			name:      "exporters without metrics",
			mutate:    func(c *Config) { c.Metrics.Enabled = false },
			wantValid: false,
		},
		{
			name: "metrics disabled with exporters off",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.Prometheus = false
			},
			wantValid: true,
		},
		{
			name:      "negative otel interval",
			mutate:    func(c *Config) { c.Metrics.OTelLogInterval = -time.Second },
			wantValid: false,
		},
		{
			name:      "weak argon2",
			mutate:    func(c *Config) { c.Admin.Password.SaltLength = 8 },
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	yamlDoc := `
session:
  lifetime: 12h
  refresh_threshold: 2h
http:
  addr: ":8080"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DPPD_ENV", "development")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.Lifetime != 12*time.Hour || cfg.Session.RefreshThreshold != 2*time.Hour {
		t.Fatalf("file durations not applied: %+v", cfg.Session)
	}
	if cfg.Environment != token.EnvDevelopment || cfg.Cookie.Secure {
		t.Fatalf("development env should relax cookie security: env=%s secure=%v", cfg.Environment, cfg.Cookie.Secure)
	}
	if cfg.Redis.URL != "redis://cache:6379/2" || cfg.HTTP.Addr != ":9090" {
		t.Fatalf("env overrides not applied: redis=%s addr=%s", cfg.Redis.URL, cfg.HTTP.Addr)
	}
	if cfg.Log.SlogLevel().String() != "DEBUG" {
		t.Fatalf("expected debug level, got %s", cfg.Log.SlogLevel())
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	if err := os.WriteFile(path, []byte("sessions:\n  lifetime: 1h\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error for unknown field, got %v", err)
	}
}

func TestApplyEnvIgnoresBlankValues(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{"ADMIN_USERNAME": "  ", "DISCORD_GUILD_ID": "123"}
	applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Admin.Username != "" {
		t.Fatalf("blank override should be ignored, got %q", cfg.Admin.Username)
	}
	if cfg.Discord.GuildID != "123" {
		t.Fatalf("expected guild override, got %q", cfg.Discord.GuildID)
	}
}

func TestBuildRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv(token.SecretEnvVar, "")
	cfg := DefaultConfig()
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	var secretErr *token.SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected *token.SecretError, got %v", err)
	}
}
