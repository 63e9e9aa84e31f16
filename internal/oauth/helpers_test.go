package oauth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/storage/memory/v2"
	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/internal/store"
	"github.com/khanghh/koauth/internal/testutil"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []oauth.AuditEvent
}

func (a *recordingAuditor) Record(_ context.Context, event oauth.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var types []string
	for _, e := range a.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	db        *gorm.DB
	repos     *oauth.Repositories
	now       time.Time
	codec     *codec.Codec
	auditor   *recordingAuditor
	consent   *oauth.ConsentGate
	tokens    *oauth.TokenService
	authorize *oauth.AuthorizeService
	guard     *oauth.AccessGuard
	sweeper   *oauth.Sweeper
	user      *model.User
	client    *model.Client
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	db := testutil.SetupTestDB(t)
	f := &fixture{
		db:      db,
		repos:   oauth.NewRepositories(db),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		auditor: &recordingAuditor{},
	}
	opts := oauth.Options{Clock: f.clock, Auditor: f.auditor}
	f.codec = codec.New("https://auth.example.com", "fallback-secret", f.clock)
	f.consent = oauth.NewConsentGate(f.repos, []string{"trusted.example.net"})
	f.tokens = oauth.NewTokenService(f.repos, f.codec, opts)
	f.authorize = oauth.NewAuthorizeService(oauth.AuthorizeConfig{
		AuthorizeURL: "https://auth.example.com/authorize",
		LoginURL:     "https://auth.example.com/login",
		ConsentURL:   "https://auth.example.com/consent",
	}, f.repos, f.codec, oauth.NewScopeCatalog(nil), f.consent, store.NewKVStorage(memory.New()), opts)
	f.guard = oauth.NewAccessGuard(f.repos, opts)
	f.sweeper = oauth.NewSweeper(f.repos, time.Minute, opts)
	f.user = testutil.MockUser(t, db, "alice")
	f.client = testutil.MockClient(t, db, "webapp")
	return f
}

func (f *fixture) subject() *oauth.Subject {
	return &oauth.Subject{UserID: f.user.ID, Username: f.user.Username, EmailVerified: true}
}

// issueCode stores a fresh authorization code for the fixture user and client.
func (f *fixture) issueCode(t *testing.T, scope []string, redirectURI string) *model.AuthorizationCode {
	value, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)
	code := &model.AuthorizationCode{
		ClientID:     f.client.ClientID,
		UserID:       f.user.ID,
		Sub:          "alice",
		Scope:        scope,
		Code:         value,
		RedirectURI:  redirectURI,
		ResponseType: oauth.ResponseTypeCode,
		Nonce:        "n-0S6_WzA2Mj",
		Status:       model.StatusCreated,
		ExpiresAt:    f.now.Add(params.AuthorizationCodeExpiration),
	}
	require.NoError(t, f.repos.Codes.Create(context.Background(), code))
	return code
}

func (f *fixture) exchangeCode(code, redirectURI string) (*oauth.TokenResponse, error) {
	return f.tokens.HandleTokenRequest(context.Background(), oauth.TokenRequest{
		GrantType:   oauth.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: redirectURI,
	}, f.client)
}

func (f *fixture) refresh(refreshToken, scope string) (*oauth.TokenResponse, error) {
	return f.tokens.HandleTokenRequest(context.Background(), oauth.TokenRequest{
		GrantType:    oauth.GrantTypeRefreshToken,
		RefreshToken: refreshToken,
		Scope:        scope,
	}, f.client)
}

func (f *fixture) countLineage(t *testing.T, authID uint) (access, refresh int64) {
	ctx := context.Background()
	access, err := f.repos.AccessTokens.Count(ctx, repo.Eq("auth_id", authID))
	require.NoError(t, err)
	refresh, err = f.repos.RefreshTokens.Count(ctx, repo.Eq("auth_id", authID))
	require.NoError(t, err)
	return access, refresh
}

func requireOAuthError(t *testing.T, err error, code string) *oauth.OAuthError {
	t.Helper()
	require.Error(t, err)
	var oauthErr *oauth.OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, code, oauthErr.Code, oauthErr.Description)
	return oauthErr
}
