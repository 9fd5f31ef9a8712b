package portal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
	"github.com/redis/go-redis/v9"
)

const (
	testAdminUser     = "chief"
	testAdminPassword = "correct horse battery"
)

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(n int) *captureSink {
	return &captureSink{events: make(chan AuditEvent, n)}
}

func (s *captureSink) Emit(_ context.Context, e AuditEvent) {
	select {
	case s.events <- e:
	default:
	}
}

// waitFor drains events until one of type eventType arrives.
func (s *captureSink) waitFor(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected %s audit event", eventType)
			return AuditEvent{}
		}
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	clock  *testClock
	sink   *captureSink
}

func cheapArgon() password.Config {
	return password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
}

func testConfig(t testing.TB) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Admin.Password = cheapArgon()
	hasher, err := password.NewHasher(cfg.Admin.Password)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := hasher.Hash(testAdminPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	cfg.Admin.Username = testAdminUser
	cfg.Admin.PasswordHash = hash
	cfg.Audit.BufferSize = 64
	return cfg
}

func newTestEnv(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sink := newCaptureSink(256)
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSecret([]byte("test-session-secret-0123456789abcdef")).
		WithClock(clock.Now).
		WithAuditSink(sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, mr: mr, clock: clock, sink: sink}
}

func clientCtx(ip, ua string) context.Context {
	return WithUserAgent(WithClientIP(context.Background(), ip), ua)
}

func requestWithCookie(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}

func customPrincipal() permission.Principal {
	return permission.Principal{
		ID:          "discord-42",
		Username:    "officer",
		DisplayName: "Officer",
		Role:        permission.RoleCustom,
		Permissions: []string{permission.PermRoster},
	}
}

func superAdmin() *permission.Principal {
	return &permission.Principal{ID: AdminUserID, Username: testAdminUser, Role: permission.RoleSuperAdmin}
}

func rosterMapping(discordID string, priority int) permission.RoleMapping {
	return permission.RoleMapping{
		DiscordRoleID: discordID,
		DisplayName:   "Patrol " + discordID[len(discordID)-4:],
		Role:          permission.RoleCustom,
		Permissions:   []string{permission.PermRoster},
		PagePermissions: []permission.PagePermission{
			{PageID: permission.PageRoster, Actions: []permission.Action{permission.ActionView}},
		},
		Priority: priority,
		Active:   true,
	}
}
