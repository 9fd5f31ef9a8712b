// Package portaltest builds engines backed by miniredis for tests of the
// packages layered on top of portal.
package portaltest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
	"github.com/redis/go-redis/v9"
)

const (
	AdminUser     = "chief"
	AdminPassword = "correct horse battery"
	Secret        = "portaltest-session-secret-0123456789"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Env is a built engine and the fakes behind it.
type Env struct {
	Engine *portal.Engine
	Redis  *miniredis.Miniredis
	Client *redis.Client
	Clock  *Clock
	Config portal.Config
}

// Config returns a default configuration with a cheap argon2 admin
// credential for AdminUser/AdminPassword.
func Config(t testing.TB) portal.Config {
	t.Helper()
	cfg := portal.DefaultConfig()
	cfg.Admin.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	hasher, err := password.NewHasher(cfg.Admin.Password)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := hasher.Hash(AdminPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	cfg.Admin.Username = AdminUser
	cfg.Admin.PasswordHash = hash
	cfg.Audit.Enabled = false
	return cfg
}

// New builds an engine. mutate may adjust the config; opts may adjust the
// builder before Build.
func New(t testing.TB, mutate func(*portal.Config), opts ...func(*portal.Builder)) *Env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := Config(t)
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := portal.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSecret([]byte(Secret)).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return &Env{Engine: engine, Redis: mr, Client: rdb, Clock: clock, Config: cfg}
}

// Login creates a session for user and returns its cookie.
func (e *Env) Login(t testing.TB, user permission.Principal) *http.Cookie {
	t.Helper()
	issued, err := e.Engine.CreateSession(context.Background(), user)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return issued.Cookie
}

// SuperAdmin is a super-admin principal.
func SuperAdmin() permission.Principal {
	return permission.Principal{
		ID:          "admin",
		Username:    AdminUser,
		DisplayName: "Chief",
		Role:        permission.RoleSuperAdmin,
	}
}

// Officer is a custom-role principal holding the coarse permissions perms.
func Officer(perms ...string) permission.Principal {
	return permission.Principal{
		ID:          "officer-1",
		Username:    "officer",
		DisplayName: "Officer",
		Role:        permission.RoleCustom,
		Permissions: perms,
	}
}
