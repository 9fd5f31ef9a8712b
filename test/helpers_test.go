//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/discord"
	"github.com/dppd-rp/portal/internal/portaltest"
	"github.com/dppd-rp/portal/server"
)

const guildID = "999999999999999999"

// memberStub answers guild member lookups with a fixed member.
type memberStub struct {
	member discord.Member
	calls  atomic.Int64
}

func (m *memberStub) FetchMember(_ context.Context, accessToken, guild string) (discord.Member, error) {
	m.calls.Add(1)
	if accessToken != "access-token" || guild != guildID {
		return discord.Member{}, discord.ErrNotGuildMember
	}
	return m.member, nil
}

type stack struct {
	env     *portaltest.Env
	members *memberStub
	api     *httptest.Server
	client  *http.Client
}

// newStack runs the HTTP API on a real listener with Discord OAuth pointed
// at a local token endpoint.
func newStack(t *testing.T, member discord.Member) *stack {
	t.Helper()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	members := &memberStub{member: member}
	env := portaltest.New(t, func(c *portal.Config) {
		c.Cookie.Secure = false
		c.Discord = discord.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://portal.test/api/auth/discord/callback",
			GuildID:      guildID,
		}
	}, func(b *portal.Builder) {
		b.WithDiscordMemberFetcher(members).
			WithDiscordEndpoint(oauth2.Endpoint{
				AuthURL:   tokenSrv.URL + "/authorize",
				TokenURL:  tokenSrv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			})
	})

	api := httptest.NewServer(server.New(env.Engine, env.Config.HTTP).Handler())
	t.Cleanup(api.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &stack{env: env, members: members, api: api, client: client}
}

// cmdCounter is a go-redis hook counting commands sent to Redis.
type cmdCounter struct {
	commands atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset()          { h.commands.Store(0) }
func (h *cmdCounter) Commands() int64 { return h.commands.Load() }
