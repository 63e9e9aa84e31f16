package middlewares_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/audit"
	"github.com/khanghh/koauth/internal/auth"
	"github.com/khanghh/koauth/internal/middlewares"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens map[string]*oauth.AuthContext

func (s staticTokens) RequireScopes(ctx context.Context, bearer string, scopes ...string) (*oauth.AuthContext, error) {
	authCtx, ok := s[bearer]
	if !ok {
		return nil, oauth.NewUnauthorizedClientError("access token is not valid")
	}
	return authCtx, authCtx.Require(scopes...)
}

func newGuardedApp() *fiber.App {
	registry := auth.NewRegistry(auth.NewBearerStrategy(staticTokens{
		"openid-token": {ClientID: "webapp", Scope: []string{"openid"}},
		"email-token":  {ClientID: "webapp", Scope: []string{"openid", "email"}},
	}))
	app := fiber.New()
	app.Get("/userinfo", middlewares.RequireScopes(registry, "openid", "email"), func(c *fiber.Ctx) error {
		return c.SendString(middlewares.AuthContext(c).ClientID)
	})
	return app
}

func TestRequireScopes(t *testing.T) {
	app := newGuardedApp()
	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"no token", "", fiber.StatusUnauthorized, oauth.ErrCodeUnauthorizedClient},
		{"unknown token", "Bearer nope", fiber.StatusUnauthorized, oauth.ErrCodeUnauthorizedClient},
		{"missing scope", "Bearer openid-token", fiber.StatusForbidden, oauth.ErrCodeInvalidScope},
		{"granted", "Bearer email-token", fiber.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/userinfo", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.code != "" {
				var body oauth.OAuthError
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.code, body.Code)
				assert.NotEmpty(t, resp.Header.Get(fiber.HeaderWWWAuthenticate))
			}
		})
	}
}

func TestWriteOAuthError(t *testing.T) {
	app := fiber.New()
	app.Post("/token", func(c *fiber.Ctx) error {
		switch c.Query("case") {
		case "client":
			return middlewares.WriteOAuthError(c, oauth.NewInvalidClientError("client authentication failed"))
		case "grant":
			return middlewares.WriteOAuthError(c, oauth.NewInvalidGrantError("authorization code already used"))
		}
		return middlewares.WriteOAuthError(c, errors.New("database is gone"))
	})

	tests := []struct {
		query  string
		status int
		code   string
	}{
		{"client", fiber.StatusUnauthorized, oauth.ErrCodeInvalidClient},
		{"grant", fiber.StatusBadRequest, oauth.ErrCodeInvalidGrant},
		{"other", fiber.StatusInternalServerError, oauth.ErrCodeServerError},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/token?case="+tt.query, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.status, resp.StatusCode, tt.query)
		assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
		var body oauth.OAuthError
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, tt.code, body.Code)
	}
}

func TestInjectRequestInfo(t *testing.T) {
	app := fiber.New()
	app.Use(middlewares.InjectRequestInfo())
	var got audit.RequestInfo
	app.Get("/", func(c *fiber.Ctx) error {
		got = audit.RequestInfoFrom(c.UserContext())
		return nil
	})
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderUserAgent, "koauth-test")
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "koauth-test", got.UserAgent)
	assert.NotEmpty(t, got.IP)
}
