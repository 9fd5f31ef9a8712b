package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

type fakeFetcher struct {
	gotToken string
	gotGuild string
	member   Member
	err      error
}

func (f *fakeFetcher) FetchMember(_ context.Context, accessToken, guildID string) (Member, error) {
	f.gotToken = accessToken
	f.gotGuild = guildID
	return f.member, f.err
}

func testConfig() Config {
	return Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "https://portal.example/api/auth/discord/callback",
		GuildID:      "123456789012345678",
	}
}

func newStateStore(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStateStore(rdb, ""), mr
}

func newStateSigner(t *testing.T, key string, ttl time.Duration) (*StateSigner, *miniredis.Miniredis) {
	t.Helper()
	store, mr := newStateStore(t)
	signer, err := NewStateSigner([]byte(key), ttl, store)
	if err != nil {
		t.Fatalf("NewStateSigner: %v", err)
	}
	return signer, mr
}

func newTestOAuth(t *testing.T, fetcher MemberFetcher) *OAuth {
	t.Helper()
	signer, _ := newStateSigner(t, "state-key", 0)
	o, err := NewOAuth(testConfig(), signer, fetcher)
	if err != nil {
		t.Fatalf("NewOAuth: %v", err)
	}
	return o
}

func TestAuthCodeURLCarriesVerifiableState(t *testing.T) {
	o := newTestOAuth(t, &fakeFetcher{})

	raw, nonce, err := o.AuthCodeURL(context.Background())
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.HasPrefix(raw, discordgo.EndpointOAuth2+"authorize") {
		t.Fatalf("unexpected authorize url %q", raw)
	}
	q := u.Query()
	if q.Get("client_id") != "client-1" {
		t.Fatalf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("scope") != "identify guilds.members.read" {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
	if strings.Contains(raw, nonce) {
		t.Fatal("nonce must not travel in the authorize url")
	}
	if err := o.VerifyState(context.Background(), q.Get("state"), nonce); err != nil {
		t.Fatalf("state from url should verify: %v", err)
	}
}

func TestStateRejectsTamperedExpiredAndForeign(t *testing.T) {
	ctx := context.Background()
	signer, _ := newStateSigner(t, "state-key", time.Minute)
	base := time.Unix(1700000000, 0)
	signer.now = func() time.Time { return base }

	issue := func() AuthState {
		t.Helper()
		st, err := signer.Issue(ctx)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return st
	}

	st := issue()
	tampered := st.Value[:len(st.Value)-2] + "xx"
	if err := signer.Verify(ctx, tampered, st.Nonce); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("tampered state: got %v", err)
	}
	if err := signer.Verify(ctx, "", st.Nonce); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("empty state: got %v", err)
	}

	other, _ := newStateSigner(t, "other-key", time.Minute)
	other.now = signer.now
	if err := other.Verify(ctx, st.Value, st.Nonce); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("state signed with another key: got %v", err)
	}

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := signer.Verify(ctx, st.Value, st.Nonce); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired state: got %v", err)
	}
}

func TestStateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	signer, mr := newStateSigner(t, "state-key", time.Minute)

	st, err := signer.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if n := len(mr.Keys()); n != 1 {
		t.Fatalf("expected one outstanding state key, got %d", n)
	}
	if err := signer.Verify(ctx, st.Value, st.Nonce); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := signer.Verify(ctx, st.Value, st.Nonce); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("replay %d: got %v", i+1, err)
		}
	}
	if n := len(mr.Keys()); n != 0 {
		t.Fatalf("consumed state must be deleted, %d keys left", n)
	}
}

func TestStateBoundToIssuingBrowser(t *testing.T) {
	ctx := context.Background()
	signer, _ := newStateSigner(t, "state-key", time.Minute)

	attacker, err := signer.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	victim, err := signer.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// The victim's browser holds its own nonce, not the attacker's.
	if err := signer.Verify(ctx, attacker.Value, victim.Nonce); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("foreign nonce: got %v", err)
	}
	if err := signer.Verify(ctx, attacker.Value, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("missing nonce: got %v", err)
	}
	// A rejected nonce does not burn the state for its rightful browser.
	if err := signer.Verify(ctx, attacker.Value, attacker.Nonce); err != nil {
		t.Fatalf("rightful browser: %v", err)
	}
}

func TestStateStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	signer, mr := newStateSigner(t, "state-key", time.Minute)

	st, err := signer.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	mr.SetError("ERR injected failure")
	if err := signer.Verify(ctx, st.Value, st.Nonce); !errors.Is(err, ErrStateUnavailable) {
		t.Fatalf("verify with store down: got %v", err)
	}
	if _, err := signer.Issue(ctx); !errors.Is(err, ErrStateUnavailable) {
		t.Fatalf("issue with store down: got %v", err)
	}
}

func TestMemberExchangesCodeAndFetches(t *testing.T) {
	var gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotCode = r.Form.Get("code")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-abc","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	fetcher := &fakeFetcher{member: Member{UserID: "u1", Username: "officer", RoleIDs: []string{"111111111111111111"}}}
	o := newTestOAuth(t, fetcher)
	o.SetEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams})

	m, err := o.Member(context.Background(), "code-xyz")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if gotCode != "code-xyz" {
		t.Fatalf("token endpoint saw code %q", gotCode)
	}
	if fetcher.gotToken != "access-abc" || fetcher.gotGuild != testConfig().GuildID {
		t.Fatalf("fetcher got token=%q guild=%q", fetcher.gotToken, fetcher.gotGuild)
	}
	if m.UserID != "u1" || len(m.RoleIDs) != 1 {
		t.Fatalf("unexpected member %+v", m)
	}
}

func TestMemberExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	fetcher := &fakeFetcher{}
	o := newTestOAuth(t, fetcher)
	o.SetEndpoint(oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams})

	if _, err := o.Member(context.Background(), "bad"); err == nil {
		t.Fatal("expected exchange error")
	}
	if fetcher.gotToken != "" {
		t.Fatal("fetcher must not run after a failed exchange")
	}
	if _, err := o.Member(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank code")
	}
}

func TestMemberFromPrefersNickThenGlobalName(t *testing.T) {
	u := &discordgo.User{ID: "9", Username: "handle", GlobalName: "Global"}
	if got := memberFrom(u, &discordgo.Member{Roles: []string{"a"}}); got.DisplayName != "Global" {
		t.Fatalf("display name = %q, want Global", got.DisplayName)
	}
	got := memberFrom(u, &discordgo.Member{Nick: "Sgt. Handle", Roles: []string{"a", "b"}})
	if got.DisplayName != "Sgt. Handle" || len(got.RoleIDs) != 2 {
		t.Fatalf("unexpected member %+v", got)
	}
	if got := memberFrom(&discordgo.User{ID: "9", Username: "handle"}, nil); got.DisplayName != "handle" {
		t.Fatalf("display name = %q, want handle", got.DisplayName)
	}
}

func TestNewOAuthRequiresConfig(t *testing.T) {
	signer, _ := newStateSigner(t, "k", 0)
	cfg := testConfig()
	cfg.GuildID = ""
	if _, err := NewOAuth(cfg, signer, nil); err == nil {
		t.Fatal("expected error without guild id")
	}
	store, _ := newStateStore(t)
	if _, err := NewStateSigner(nil, 0, store); err == nil {
		t.Fatal("expected error without key")
	}
	if _, err := NewStateSigner([]byte("k"), 0, nil); err == nil {
		t.Fatal("expected error without store")
	}
}
