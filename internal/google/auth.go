// Package google connects LINE users to Google Calendar: OAuth consent,
// token upkeep, and calendar event creation for confirmed sessions.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"nomikai/apps/backend/internal/kv"
	"nomikai/apps/backend/internal/user"
)

var (
	ErrNotConfigured  = errors.New("google oauth credentials not configured")
	ErrInvalidState   = errors.New("invalid or expired OAuth state")
	ErrNoRefreshToken = errors.New("no refresh token available")
)

const (
	defaultStateTTL = 10 * time.Minute
	stateKeyPrefix  = "oauth_state:"
	stateIssuer     = "nomikai-google-oauth"
)

var scopes = []string{
	calendarapi.CalendarScope,
	calendarapi.CalendarEventsScope,
	oauth2api.UserinfoEmailScope,
	"openid",
}

// Identity is the Google account behind a token.
type Identity struct {
	GoogleID string
	Email    string
}

type IdentityFetcher interface {
	Identity(ctx context.Context, ts oauth2.TokenSource) (Identity, error)
}

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	StateSecret  string
	StateTTL     time.Duration
	KV           kv.Store
	Users        user.Store
	// Endpoint and Identities override Google's defaults, mainly for tests.
	Endpoint   *oauth2.Endpoint
	Identities IdentityFetcher
	Now        func() time.Time
}

type Auth struct {
	oauth      *oauth2.Config
	secret     []byte
	stateTTL   time.Duration
	kv         kv.Store
	users      user.Store
	identities IdentityFetcher
	now        func() time.Time
}

func NewAuth(cfg AuthConfig) *Auth {
	endpoint := googleoauth.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	identities := cfg.Identities
	if identities == nil {
		identities = userinfoFetcher{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Auth{
		oauth: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURI),
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		secret:     []byte(cfg.StateSecret),
		stateTTL:   ttl,
		kv:         cfg.KV,
		users:      cfg.Users,
		identities: identities,
		now:        now,
	}
}

func (a *Auth) Enabled() bool {
	return a.oauth.ClientID != "" && a.oauth.ClientSecret != ""
}

// AuthURL issues a single-use signed state bound to lineUserID.
func (a *Auth) AuthURL(ctx context.Context, lineUserID string) (string, error) {
	if !a.Enabled() {
		return "", ErrNotConfigured
	}
	lineUserID = strings.TrimSpace(lineUserID)
	if lineUserID == "" {
		return "", fmt.Errorf("%w: lineUserId is required", ErrInvalidState)
	}
	now := a.now()
	jti := uuid.NewString()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   lineUserID,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.stateTTL)),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	if _, err := a.kv.SetNX(ctx, stateKeyPrefix+jti, lineUserID, a.stateTTL); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return a.oauth.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// ConsumeState verifies the state and burns it; a replayed state fails.
func (a *Auth) ConsumeState(ctx context.Context, state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		state,
		claims,
		func(token *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid || claims.ID == "" || claims.Subject == "" {
		return "", ErrInvalidState
	}
	owner, ok, err := a.kv.Take(ctx, stateKeyPrefix+claims.ID)
	if err != nil {
		return "", fmt.Errorf("consume state: %w", err)
	}
	if !ok || owner != claims.Subject {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}

// Callback finishes the consent flow and stores the user's tokens.
func (a *Auth) Callback(ctx context.Context, code, state string) (user.User, error) {
	if !a.Enabled() {
		return user.User{}, ErrNotConfigured
	}
	lineUserID, err := a.ConsumeState(ctx, state)
	if err != nil {
		return user.User{}, err
	}
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return user.User{}, fmt.Errorf("exchange code: %w", err)
	}
	identity, err := a.identities.Identity(ctx, a.oauth.TokenSource(ctx, token))
	if err != nil {
		return user.User{}, fmt.Errorf("fetch identity: %w", err)
	}
	return a.users.SaveGoogleTokens(ctx, lineUserID, tokensOf(token, identity))
}

func tokensOf(token *oauth2.Token, identity Identity) user.GoogleTokens {
	t := user.GoogleTokens{
		GoogleID:     identity.GoogleID,
		Email:        identity.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		t.Expiry = &expiry
	}
	return t
}

// Refresh forces a new access token from the stored refresh token.
func (a *Auth) Refresh(ctx context.Context, lineUserID string) error {
	u, err := a.users.Get(ctx, lineUserID)
	if err != nil {
		return err
	}
	if u.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	stale := &oauth2.Token{RefreshToken: u.RefreshToken, Expiry: a.now().Add(-time.Minute)}
	fresh, err := a.oauth.TokenSource(ctx, stale).Token()
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	_, err = a.users.SaveGoogleTokens(ctx, lineUserID, tokensOf(fresh, Identity{}))
	return err
}

func (a *Auth) Disconnect(ctx context.Context, lineUserID string) error {
	return a.users.DisconnectGoogle(ctx, lineUserID)
}

// TokenSource refreshes u's token on demand and persists any new token.
func (a *Auth) TokenSource(ctx context.Context, u user.User) oauth2.TokenSource {
	token := &oauth2.Token{AccessToken: u.AccessToken, RefreshToken: u.RefreshToken}
	if u.TokenExpiry != nil {
		token.Expiry = *u.TokenExpiry
	}
	return &persistingSource{
		ctx:        ctx,
		base:       a.oauth.TokenSource(ctx, token),
		users:      a.users,
		lineUserID: u.LineUserID,
		last:       u.AccessToken,
	}
}

type persistingSource struct {
	ctx        context.Context
	base       oauth2.TokenSource
	users      user.Store
	lineUserID string
	last       string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != p.last {
		p.last = token.AccessToken
		if _, err := p.users.SaveGoogleTokens(p.ctx, p.lineUserID, tokensOf(token, Identity{})); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
	}
	return token, nil
}

type userinfoFetcher struct {
	opts []option.ClientOption
}

func (f userinfoFetcher) Identity(ctx context.Context, ts oauth2.TokenSource) (Identity, error) {
	svc, err := oauth2api.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, f.opts...)...)
	if err != nil {
		return Identity{}, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, err
	}
	return Identity{GoogleID: info.Id, Email: info.Email}, nil
}

// NewUserinfoFetcher reads identity from Google's userinfo endpoint.
func NewUserinfoFetcher(opts ...option.ClientOption) IdentityFetcher {
	return userinfoFetcher{opts: opts}
}
