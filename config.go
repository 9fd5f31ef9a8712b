package portal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dppd-rp/portal/discord"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
	"github.com/dppd-rp/portal/session"
	"github.com/dppd-rp/portal/token"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. The session signing secret is
// deliberately absent: it is only read from the environment.
type Config struct {
	Environment   token.Environment   `yaml:"environment"`
	Session       SessionConfig       `yaml:"session"`
	Cookie        CookieConfig        `yaml:"cookie"`
	DeviceBinding DeviceBindingConfig `yaml:"device_binding"`
	Permission    PermissionConfig    `yaml:"permission"`
	Security      SecurityConfig      `yaml:"security"`
	Admin         AdminConfig         `yaml:"admin"`
	Discord       discord.Config      `yaml:"discord"`
	Audit         AuditConfig         `yaml:"audit"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Redis         RedisConfig         `yaml:"redis"`
	HTTP          HTTPConfig          `yaml:"http"`
	Log           LogConfig           `yaml:"log"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime.
type SessionConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
	// Lifetime is both the initial lifetime and the renewal extension.
	Lifetime time.Duration `yaml:"lifetime"`
	// RefreshThreshold is how long after the last renewal a read renews again.
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
}

// CookieConfig controls the session cookie. SameSite is always Strict and
// HttpOnly is always set.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Domain string `yaml:"domain"`
	Secure bool   `yaml:"secure"`
}

// DeviceBindingConfig enables detect-only client fingerprint checks.
type DeviceBindingConfig struct {
	Enabled               bool          `yaml:"enabled"`
	DetectIPChange        bool          `yaml:"detect_ip_change"`
	DetectUserAgentChange bool          `yaml:"detect_user_agent_change"`
	AnomalyWindow         time.Duration `yaml:"anomaly_window"`
}

// PermissionConfig controls the role-configuration store and cache.
type PermissionConfig struct {
	RedisKey string        `yaml:"redis_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

/*
====================================
SECURITY / LOGIN CONFIG
====================================
*/

// SecurityConfig controls admin login throttling.
type SecurityConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LoginWindow      time.Duration `yaml:"login_window"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle"`
}

// AdminConfig holds the static admin credential. Leaving both fields empty
// disables password login.
type AdminConfig struct {
	Username     string          `yaml:"username"`
	PasswordHash string          `yaml:"password_hash"`
	Password     password.Config `yaml:"argon2"`
}

// Enabled reports whether an admin credential is configured.
func (c AdminConfig) Enabled() bool {
	return c.Username != "" && c.PasswordHash != ""
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
	// Sink is "slog" (default) or "json" for JSON lines on stdout.
	Sink string `yaml:"sink"`
}

// MetricsConfig controls in-process counters and their exporters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
	// Prometheus serves the collector at /metrics.
	Prometheus bool `yaml:"prometheus"`
	// OTelLogInterval, when positive, periodically logs counters through the
	// OpenTelemetry SDK.
	OTelLogInterval time.Duration `yaml:"otel_log_interval"`
}

/*
====================================
PROCESS CONFIG
====================================
*/

// RedisConfig locates the Redis instance backing sessions and role config.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// PostLoginRedirect is where the Discord callback sends the browser.
	PostLoginRedirect string `yaml:"post_login_redirect"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Environment: token.EnvProduction,
		Session: SessionConfig{
			RedisPrefix:      session.DefaultPrefix,
			Lifetime:         session.DefaultLifetime,
			RefreshThreshold: session.DefaultRefreshThreshold,
		},
		Cookie: CookieConfig{
			Name:   "dppd_session",
			Path:   "/",
			Secure: true,
		},
		DeviceBinding: DeviceBindingConfig{
			Enabled:               true,
			DetectIPChange:        true,
			DetectUserAgentChange: true,
			AnomalyWindow:         time.Minute,
		},
		Permission: PermissionConfig{
			RedisKey: permission.RoleConfigKey,
			CacheTTL: permission.DefaultCacheTTL,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 5,
			LoginWindow:      15 * time.Minute,
			EnableIPThrottle: true,
		},
		Admin: AdminConfig{
			Password: password.DefaultConfig(),
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
			Sink:       "slog",
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
			Prometheus:              true,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		HTTP: HTTPConfig{
			Addr:              ":3000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			PostLoginRedirect: "/admin",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads the YAML file at path over DefaultConfig, applies
// environment overrides and validates the result. An empty path skips the
// file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(bytes.NewReader(raw), &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeConfig(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(token.EnvironmentEnvVar); ok {
		cfg.Environment = token.ParseEnvironment(v)
	}
	str("REDIS_URL", &cfg.Redis.URL)
	str("ADMIN_USERNAME", &cfg.Admin.Username)
	str("ADMIN_PASSWORD_HASH", &cfg.Admin.PasswordHash)
	str("DISCORD_CLIENT_ID", &cfg.Discord.ClientID)
	str("DISCORD_CLIENT_SECRET", &cfg.Discord.ClientSecret)
	str("DISCORD_REDIRECT_URL", &cfg.Discord.RedirectURL)
	str("DISCORD_GUILD_ID", &cfg.Discord.GuildID)
	str("LOG_LEVEL", &cfg.Log.Level)
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		cfg.HTTP.Addr = ":" + strings.TrimSpace(v)
	}
	if cfg.Environment == token.EnvDevelopment {
		cfg.Cookie.Secure = false
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects inconsistent or unsafe settings.
func (c *Config) Validate() error {
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be > 0")
	}
	if c.Session.RefreshThreshold <= 0 {
		return errors.New("session refresh threshold must be > 0")
	}
	if c.Session.RefreshThreshold >= c.Session.Lifetime {
		return errors.New("session refresh threshold must be shorter than the lifetime")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix is required")
	}

	if c.Cookie.Name == "" {
		return errors.New("cookie name is required")
	}
	if c.Environment == token.EnvProduction && !c.Cookie.Secure {
		return errors.New("production requires secure cookies")
	}

	if c.DeviceBinding.Enabled {
		if !c.DeviceBinding.DetectIPChange && !c.DeviceBinding.DetectUserAgentChange {
			return errors.New("device binding must enable at least one detect option when enabled")
		}
		if c.DeviceBinding.AnomalyWindow <= 0 {
			return errors.New("device binding anomaly window must be > 0")
		}
	}

	if c.Permission.RedisKey == "" {
		return errors.New("permission redis key is required")
	}
	if c.Permission.CacheTTL <= 0 {
		return errors.New("permission cache ttl must be > 0")
	}

	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("max login attempts must be > 0")
	}
	if c.Security.LoginWindow <= 0 {
		return errors.New("login window must be > 0")
	}

	if (c.Admin.Username == "") != (c.Admin.PasswordHash == "") {
		return errors.New("admin username and password hash must be set together")
	}
	if err := c.Admin.Password.Validate(); err != nil {
		return fmt.Errorf("admin argon2: %w", err)
	}

	d := c.Discord
	if (d.ClientID != "" || d.ClientSecret != "" || d.GuildID != "") && !d.Enabled() {
		return errors.New("discord oauth is partially configured")
	}

	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("audit buffer size must be > 0 when audit is enabled")
		}
		switch c.Audit.Sink {
		case "", "slog", "json":
		default:
			return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
		}
	}

	if c.Metrics.OTelLogInterval < 0 {
		return errors.New("otel log interval must be >= 0")
	}
	if (c.Metrics.Prometheus || c.Metrics.OTelLogInterval > 0) && !c.Metrics.Enabled {
		return errors.New("metric exporters require metrics to be enabled")
	}

	if c.Redis.URL == "" {
		return errors.New("redis url is required")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http addr is required")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
