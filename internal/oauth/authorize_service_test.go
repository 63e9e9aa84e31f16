package oauth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/internal/testutil"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
	"github.com/stretchr/testify/require"
)

func parseRedirect(t *testing.T, location string) (*url.URL, url.Values) {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	return u, u.Query()
}

func TestAuthorizeRequiresConsent(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	location, err := f.authorize.HandleAuthorize(context.Background(), oauth.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     f.client.ClientID,
		Scope:        "mail openid",
		State:        "xyz",
	}, f.subject())
	require.NoError(err)

	u, query := parseRedirect(t, location)
	require.Equal("auth.example.com", u.Host)
	require.Equal("/consent", u.Path)
	require.NotEmpty(query.Get("flow"))

	count, err := f.repos.Codes.Count(context.Background(), repo.Eq("client_id", f.client.ClientID))
	require.NoError(err)
	require.Zero(count)
}

func TestAuthorizeConsentRoundTrip(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	req := oauth.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     f.client.ClientID,
		Scope:        "openid mail",
		State:        "xyz",
	}
	location, err := f.authorize.HandleAuthorize(ctx, req, f.subject())
	require.NoError(err)
	_, query := parseRedirect(t, location)
	flowID := query.Get("flow")

	prompt, err := f.authorize.ConsentPrompt(ctx, flowID, f.subject())
	require.NoError(err)
	require.Equal(f.client.Name, prompt.ClientName)
	require.Len(prompt.Scopes, 2)
	require.Equal("openid", prompt.Scopes[0].Name)
	require.False(prompt.Scopes[0].Granted)

	mallory := testutil.MockUser(t, f.db, "mallory")
	_, err = f.authorize.CompleteConsent(ctx, flowID, &oauth.Subject{UserID: mallory.ID, EmailVerified: true}, true)
	require.ErrorIs(err, oauth.ErrFlowMismatch)

	location, err = f.authorize.CompleteConsent(ctx, flowID, f.subject(), true)
	require.NoError(err)
	u, query := parseRedirect(t, location)
	require.Equal("webapp.example.org", u.Host)
	require.Equal("xyz", query.Get("state"))
	require.NotEmpty(query.Get("code"))

	code, err := f.repos.Codes.First(ctx, repo.Eq("code", query.Get("code")))
	require.NoError(err)
	require.Equal([]string{"openid", "mail"}, code.Scope)
	require.Equal(model.StatusCreated, code.Status)
	require.True(f.now.Add(params.AuthorizationCodeExpiration).Equal(code.ExpiresAt))

	_, err = f.authorize.CompleteConsent(ctx, flowID, f.subject(), true)
	require.ErrorIs(err, oauth.ErrFlowNotFound)

	// consent is remembered
	location, err = f.authorize.HandleAuthorize(ctx, req, f.subject())
	require.NoError(err)
	_, query = parseRedirect(t, location)
	require.NotEmpty(query.Get("code"))
	require.Contains(f.auditor.types(), oauth.EventConsentGranted)
}

func TestAuthorizeConsentDenied(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	location, err := f.authorize.HandleAuthorize(ctx, oauth.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     f.client.ClientID,
		Scope:        "mail",
		State:        "s1",
	}, f.subject())
	require.NoError(err)
	_, query := parseRedirect(t, location)

	_, err = f.authorize.CompleteConsent(ctx, query.Get("flow"), f.subject(), false)
	oauthErr := requireOAuthError(t, err, oauth.ErrCodeAccessDenied)
	location, ok := oauthErr.RedirectLocation()
	require.True(ok)
	u, query := parseRedirect(t, location)
	require.Equal("webapp.example.org", u.Host)
	require.Equal("access_denied", query.Get("error"))
	require.Equal("s1", query.Get("state"))
}

func TestAuthorizeTrustedDomainSkipsConsent(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	trusted := testutil.MockClient(t, f.db, "portal", func(c *model.Client) {
		c.RedirectURIs = []string{"https://app.trusted.example.net/cb", "https://other.example.org/cb"}
	})

	location, err := f.authorize.HandleAuthorize(ctx, oauth.AuthorizeRequest{
		ResponseType: "code token id_token",
		ClientID:     trusted.ClientID,
		Scope:        "openid profile",
		Nonce:        "abc",
	}, f.subject())
	require.NoError(err)

	u, query := parseRedirect(t, location)
	require.Equal("app.trusted.example.net", u.Host)
	require.NotEmpty(query.Get("code"))
	require.NotEmpty(query.Get("access_token"))
	require.Equal("Bearer", query.Get("token_type"))
	require.Equal("3600", query.Get("expires_in"))

	claims, err := f.codec.VerifyIdentityToken(query.Get("id_token"), trusted.ClientSecret)
	require.NoError(err)
	require.Equal("abc", claims.Nonce)
	require.Equal(codec.AccessTokenHash(query.Get("access_token")), claims.AtHash)

	decision, err := f.consent.HasConsent(ctx, f.user.ID, trusted.ClientID, []string{"openid", "profile"})
	require.NoError(err)
	require.True(decision.Complete())

	// the untrusted redirect uri of the same client still asks for consent
	location, err = f.authorize.HandleAuthorize(ctx, oauth.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     trusted.ClientID,
		Scope:        "mail",
		RedirectURI:  "https://other.example.org/cb",
	}, f.subject())
	require.NoError(err)
	u, _ = parseRedirect(t, location)
	require.Equal("/consent", u.Path)
}

func TestAuthorizeLoginGate(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	req := oauth.AuthorizeRequest{ResponseType: "code", ClientID: f.client.ClientID, Scope: "openid"}

	location, err := f.authorize.HandleAuthorize(context.Background(), req, nil)
	require.NoError(err)
	u, query := parseRedirect(t, location)
	require.Equal("/login", u.Path)
	next, err := url.Parse(query.Get("next"))
	require.NoError(err)
	require.Equal("/authorize", next.Path)
	require.Equal("webapp", next.Query().Get("client_id"))
	require.Equal("openid", next.Query().Get("scope"))

	location, err = f.authorize.HandleAuthorize(context.Background(), req, &oauth.Subject{UserID: f.user.ID})
	require.NoError(err)
	_, query = parseRedirect(t, location)
	require.Equal("unverified", query.Get("error"))
}

func TestAuthorizeErrors(t *testing.T) {
	f := newFixture(t)
	registered := f.client.DefaultRedirectURI()
	tests := []struct {
		name     string
		req      oauth.AuthorizeRequest
		code     string
		redirect string
	}{
		{
			name:     "unknown client",
			req:      oauth.AuthorizeRequest{ResponseType: "code", ClientID: "nope", RedirectURI: "https://nope.example.org/cb"},
			code:     oauth.ErrCodeInvalidClient,
			redirect: "https://nope.example.org/cb",
		},
		{
			name: "unregistered redirect uri",
			req:  oauth.AuthorizeRequest{ResponseType: "code", ClientID: "webapp", RedirectURI: "https://evil.example.org/cb"},
			code: oauth.ErrCodeInvalidRequest,
		},
		{
			name:     "unsupported response type",
			req:      oauth.AuthorizeRequest{ResponseType: "code device", ClientID: "webapp"},
			code:     oauth.ErrCodeUnsupportedResponseType,
			redirect: registered,
		},
		{
			name:     "id_token without nonce",
			req:      oauth.AuthorizeRequest{ResponseType: "id_token", ClientID: "webapp", Scope: "openid"},
			code:     oauth.ErrCodeInvalidRequest,
			redirect: registered,
		},
		{
			name:     "unknown scope",
			req:      oauth.AuthorizeRequest{ResponseType: "code", ClientID: "webapp", Scope: "openid wallet"},
			code:     oauth.ErrCodeInvalidScope,
			redirect: registered,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.State = "st"
			_, err := f.authorize.HandleAuthorize(context.Background(), tt.req, f.subject())
			oauthErr := requireOAuthError(t, err, tt.code)
			location, ok := oauthErr.RedirectLocation()
			if tt.redirect == "" {
				require.False(t, ok)
				return
			}
			require.True(t, ok)
			u, query := parseRedirect(t, location)
			require.Equal(t, tt.redirect, u.Scheme+"://"+u.Host+u.Path)
			require.Equal(t, tt.code, query.Get("error"))
			require.Equal(t, "st", query.Get("state"))
		})
	}
}

func TestAuthorizeResponseTypeNone(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	location, err := f.authorize.HandleAuthorize(context.Background(), oauth.AuthorizeRequest{
		ResponseType: "none",
		ClientID:     f.client.ClientID,
		State:        "only-state",
	}, f.subject())
	require.NoError(err)
	_, query := parseRedirect(t, location)
	require.Equal("only-state", query.Get("state"))
	require.Empty(query.Get("code"))
}

func TestAuthorizeCodeExchangeEndToEnd(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	redirectURI := f.client.DefaultRedirectURI()
	require.NoError(f.consent.RecordConsent(ctx, f.user.ID, f.client.ClientID, []string{"openid", "mail"}))

	location, err := f.authorize.HandleAuthorize(ctx, oauth.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     f.client.ClientID,
		Scope:        "openid mail",
		RedirectURI:  redirectURI,
	}, f.subject())
	require.NoError(err)
	_, query := parseRedirect(t, location)

	resp, err := f.exchangeCode(query.Get("code"), redirectURI)
	require.NoError(err)
	require.NotEmpty(resp.RefreshToken)
	claims, err := f.codec.VerifyIdentityToken(resp.IDToken, f.client.ClientSecret)
	require.NoError(err)
	require.Equal([]string{"webapp"}, []string(claims.Audience))
}
