package portal

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dppd-rp/portal/discord"
	"github.com/dppd-rp/portal/internal/audit"
	"github.com/dppd-rp/portal/internal/rate"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
	"github.com/dppd-rp/portal/session"
	"github.com/dppd-rp/portal/token"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// Builder assembles an [Engine]. It is configured during initialization and
// can build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	secret []byte
	logger *slog.Logger
	clock  func() time.Time

	auditSink     AuditSink
	memberFetcher discord.MemberFetcher
	oauthEndpoint *oauth2.Endpoint

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client for sessions, role config and throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSecret sets the session signing secret. Without it Build resolves
// the secret from the environment.
func (b *Builder) WithSecret(secret []byte) *Builder {
	b.secret = append([]byte(nil), secret...)
	return b
}

// WithLogger sets the logger; slog.Default is used otherwise.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the time source of sessions and the role cache.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithAuditSink overrides the sink selected by Config.Audit.Sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithDiscordMemberFetcher replaces the Discord REST member lookup.
func (b *Builder) WithDiscordMemberFetcher(f discord.MemberFetcher) *Builder {
	b.memberFetcher = f
	return b
}

// WithDiscordEndpoint replaces Discord's OAuth2 endpoint.
func (b *Builder) WithDiscordEndpoint(ep oauth2.Endpoint) *Builder {
	b.oauthEndpoint = &ep
	return b
}

// Build validates the configuration and wires the engine. A missing secret
// outside development returns a *token.SecretError.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret := b.secret
	if len(secret) == 0 {
		s, err := token.ResolveSecret(cfg.Environment)
		if err != nil {
			return nil, err
		}
		secret = s
	}
	signer, err := token.NewSigner(secret)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- SESSIONS --------
	store := session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.Lifetime, cfg.Session.RefreshThreshold)
	if b.clock != nil {
		store.SetClock(b.clock)
	}

	// -------- ROLE CONFIG --------
	opts := []permission.RoleManagerOption{
		permission.WithCacheTTL(cfg.Permission.CacheTTL),
		permission.WithLogger(logger),
	}
	if b.clock != nil {
		opts = append(opts, permission.WithClock(b.clock))
	}
	roles := permission.NewRoleManager(permission.NewRedisConfigStore(b.redis, cfg.Permission.RedisKey), opts...)

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		signer:    signer,
		sessions:  store,
		roles:     roles,
		evaluator: permission.NewEvaluator(roles),
		limiter: rate.New(b.redis, rate.Config{
			MaxAttempts:      cfg.Security.MaxLoginAttempts,
			Window:           cfg.Security.LoginWindow,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
		}),
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- LOGIN SURFACES --------
	if cfg.Admin.Enabled() {
		hasher, err := password.NewHasher(cfg.Admin.Password)
		if err != nil {
			return nil, err
		}
		cred, err := password.NewAdminCredential(cfg.Admin.Username, cfg.Admin.PasswordHash, hasher)
		if err != nil {
			return nil, fmt.Errorf("admin credential: %w", err)
		}
		engine.admin = cred
	}
	if cfg.Discord.Enabled() {
		state, err := discord.NewStateSigner(
			deriveKey(secret, "discord-oauth-state"),
			discord.DefaultStateTTL,
			discord.NewRedisStateStore(b.redis, discord.DefaultStatePrefix),
		)
		if err != nil {
			return nil, err
		}
		oauth, err := discord.NewOAuth(cfg.Discord, state, b.memberFetcher)
		if err != nil {
			return nil, err
		}
		if b.oauthEndpoint != nil {
			oauth.SetEndpoint(*b.oauthEndpoint)
		}
		engine.oauth = oauth
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		switch cfg.Audit.Sink {
		case "json":
			sink = NewJSONWriterSink(os.Stdout)
		default:
			sink = NewSlogSink(logger)
		}
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true
	return engine, nil
}

// deriveKey separates the OAuth state key from the session signing key.
func deriveKey(secret []byte, label string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}
