package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dppd-rp/portal/permission"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	clock := &testClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := NewStore(rdb, "", 0, 0)
	store.SetClock(clock.Now)
	return store, mr, clock
}

func testSession(now time.Time) *Session {
	return New("sid-1", permission.Principal{
		ID:          "123456789012345678",
		Username:    "officer",
		DisplayName: "Officer",
		Role:        permission.RoleCustom,
		Permissions: []string{permission.PermRoster},
		MappingID:   "map-1",
	}, now, DefaultLifetime)
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession(clock.Now())
	sess.IPHash = "ab"

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User.MappingID != "map-1" || got.User.Username != "officer" || got.IPHash != "ab" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("expiry changed on fresh read: %v vs %v", got.ExpiresAt, sess.ExpiresAt)
	}
	if got.WasRefreshed() {
		t.Fatal("fresh session must not be refreshed")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStoreExpiryBoundary(t *testing.T) {
	store, mr, clock := newSessionStoreTest(t)
	ctx := context.Background()
	// A longer threshold keeps renewals out of the way.
	store.refreshThreshold = 48 * time.Hour

	sess := testSession(clock.Now())
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(DefaultLifetime - time.Nanosecond)
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Fatalf("session should be valid just before expiry: %v", err)
	}

	clock.Advance(time.Nanosecond)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session should be gone at expiry, got %v", err)
	}
	if mr.Exists(store.key(sess.ID)) {
		t.Fatal("expired record should be removed on access")
	}
}

func TestStoreRefreshExtendsAfterThreshold(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession(clock.Now())
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(DefaultRefreshThreshold)
	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get within threshold: %v", err)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) || got.WasRefreshed() {
		t.Fatalf("expiry must not move within threshold: %v", got.ExpiresAt)
	}

	clock.Advance(time.Second)
	got, err = store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get past threshold: %v", err)
	}
	want := clock.Now().Add(DefaultLifetime)
	if !got.ExpiresAt.Equal(want) || !got.RefreshedAt.Equal(clock.Now()) || !got.LastActivity.Equal(clock.Now()) {
		t.Fatalf("expected renewal to %v, got %+v", want, got)
	}
	if !got.WasRefreshed() {
		t.Fatal("expected refreshed marker")
	}

	stored, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if !stored.ExpiresAt.Equal(want) {
		t.Fatalf("renewal not persisted: %v", stored.ExpiresAt)
	}
}

func TestStoreIdleSessionExpiresAtPreviousBoundary(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession(clock.Now())
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(DefaultLifetime + time.Minute)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("idle session must expire, got %v", err)
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession(clock.Now())

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}

func TestStoreSaveRejectsExpired(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	sess := testSession(clock.Now().Add(-DefaultLifetime))
	if err := store.Save(context.Background(), sess); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired save to fail, got %v", err)
	}
}

func TestStoreRedisFailureSurfaces(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	mr.SetError("LOADING")
	if _, err := store.Get(context.Background(), "sid"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestStoreCorruptRecord(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	if err := mr.Set(store.key("bad"), "not-json"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(context.Background(), "bad"); !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected ErrSessionCorrupt, got %v", err)
	}
}

func TestShouldEmitDeviceAnomalyOncePerWindow(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	first, err := store.ShouldEmitDeviceAnomaly(ctx, "sid", "ip", time.Minute)
	if err != nil || !first {
		t.Fatalf("first anomaly: emit=%v err=%v", first, err)
	}
	again, err := store.ShouldEmitDeviceAnomaly(ctx, "sid", "ip", time.Minute)
	if err != nil || again {
		t.Fatalf("repeat anomaly: emit=%v err=%v", again, err)
	}
	other, _ := store.ShouldEmitDeviceAnomaly(ctx, "sid", "ua", time.Minute)
	if !other {
		t.Fatal("different kind should emit")
	}

	mr.FastForward(2 * time.Minute)
	after, _ := store.ShouldEmitDeviceAnomaly(ctx, "sid", "ip", time.Minute)
	if !after {
		t.Fatal("anomaly should emit again after the window")
	}
}

func TestEstimateActiveSessionsIgnoresAnomalyKeys(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		s := testSession(clock.Now())
		s.ID = id
		if err := store.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = store.ShouldEmitDeviceAnomaly(ctx, "a", "ip", time.Minute)

	n, err := store.EstimateActiveSessions(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 sessions, got %d err=%v", n, err)
	}
}
