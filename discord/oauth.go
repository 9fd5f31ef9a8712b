package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
)

// Scopes requested from Discord: the user identity and their membership in
// the configured guild.
var Scopes = []string{"identify", "guilds.members.read"}

// Endpoint is Discord's OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   discordgo.EndpointOAuth2 + "authorize",
	TokenURL:  discordgo.EndpointOAuth2 + "token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Config configures the Discord login.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	RedirectURL  string `yaml:"redirect_url"`
	GuildID      string `yaml:"guild_id"`
}

// Enabled reports whether enough is configured to offer Discord login.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != "" && c.GuildID != ""
}

// Member is a guild member resolved from an OAuth code.
type Member struct {
	UserID      string
	Username    string
	DisplayName string
	RoleIDs     []string
}

// MemberFetcher looks up the token owner's membership in a guild.
type MemberFetcher interface {
	FetchMember(ctx context.Context, accessToken, guildID string) (Member, error)
}

// ErrNotGuildMember is returned when the user is not in the configured guild.
var ErrNotGuildMember = errors.New("user is not a member of the guild")

// OAuth drives the authorization code flow.
type OAuth struct {
	config  *oauth2.Config
	guildID string
	state   *StateSigner
	members MemberFetcher
}

// NewOAuth wires the flow. A nil fetcher uses the Discord REST API.
func NewOAuth(cfg Config, state *StateSigner, members MemberFetcher) (*OAuth, error) {
	if !cfg.Enabled() {
		return nil, errors.New("discord oauth is not fully configured")
	}
	if state == nil {
		return nil, errors.New("oauth state signer is required")
	}
	if members == nil {
		members = RESTFetcher{}
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     Endpoint,
			Scopes:       Scopes,
		},
		guildID: cfg.GuildID,
		state:   state,
		members: members,
	}, nil
}

// SetEndpoint overrides the OAuth2 endpoint, for tests against a fake server.
func (o *OAuth) SetEndpoint(ep oauth2.Endpoint) {
	o.config.Endpoint = ep
}

// AuthCodeURL returns the Discord consent URL carrying a fresh signed state,
// and the nonce the initiating browser must present at the callback.
func (o *OAuth) AuthCodeURL(ctx context.Context) (authURL, nonce string, err error) {
	state, err := o.state.Issue(ctx)
	if err != nil {
		return "", "", err
	}
	return o.config.AuthCodeURL(state.Value, oauth2.SetAuthURLParam("prompt", "none")), state.Nonce, nil
}

// VerifyState checks and consumes the state echoed back to the callback.
func (o *OAuth) VerifyState(ctx context.Context, state, nonce string) error {
	return o.state.Verify(ctx, state, nonce)
}

// StateTTL returns how long an issued state stays valid.
func (o *OAuth) StateTTL() time.Duration {
	return o.state.TTL()
}

// Member exchanges code for a token and resolves the guild member.
func (o *OAuth) Member(ctx context.Context, code string) (Member, error) {
	if strings.TrimSpace(code) == "" {
		return Member{}, errors.New("missing authorization code")
	}
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return Member{}, fmt.Errorf("discord code exchange: %w", err)
	}
	return o.members.FetchMember(ctx, tok.AccessToken, o.guildID)
}

// RESTFetcher resolves members through the Discord REST API with a user
// bearer token.
type RESTFetcher struct{}

func (RESTFetcher) FetchMember(ctx context.Context, accessToken, guildID string) (Member, error) {
	s, err := discordgo.New("Bearer " + accessToken)
	if err != nil {
		return Member{}, err
	}
	s.StateEnabled = false

	me, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return Member{}, fmt.Errorf("discord user lookup: %w", err)
	}
	gm, err := s.UserGuildMember(guildID, discordgo.WithContext(ctx))
	if err != nil {
		var rerr *discordgo.RESTError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == 404 {
			return Member{}, ErrNotGuildMember
		}
		return Member{}, fmt.Errorf("discord member lookup: %w", err)
	}
	return memberFrom(me, gm), nil
}

func memberFrom(u *discordgo.User, gm *discordgo.Member) Member {
	m := Member{UserID: u.ID, Username: u.Username, DisplayName: u.Username}
	if u.GlobalName != "" {
		m.DisplayName = u.GlobalName
	}
	if gm != nil {
		if gm.Nick != "" {
			m.DisplayName = gm.Nick
		}
		m.RoleIDs = append(m.RoleIDs, gm.Roles...)
	}
	return m
}
