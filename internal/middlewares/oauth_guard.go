package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/auth"
	"github.com/khanghh/koauth/internal/oauth"
)

const authContextKey = "oauth_auth_context"

// WriteOAuthError sends err as an OAuth2 JSON error body.
func WriteOAuthError(ctx *fiber.Ctx, err error) error {
	oauthErr := oauth.AsOAuthError(err)
	if oauthErr.Code == oauth.ErrCodeServerError {
		slog.Error("OAuth request failed", "path", ctx.Path(), "error", err)
	}
	if oauthErr.Code == oauth.ErrCodeInvalidClient {
		ctx.Set(fiber.HeaderWWWAuthenticate, `Basic realm="koauth"`)
	}
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	ctx.Set(fiber.HeaderPragma, "no-cache")
	return ctx.Status(oauthErr.StatusCode()).JSON(oauthErr)
}

// WriteGuardError reports protected resource failures: a bad token is 401,
// a token lacking scope is 403.
func WriteGuardError(ctx *fiber.Ctx, err error) error {
	oauthErr := oauth.AsOAuthError(err)
	switch oauthErr.Code {
	case oauth.ErrCodeUnauthorizedClient:
		ctx.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="koauth"`)
		return ctx.Status(fiber.StatusUnauthorized).JSON(oauthErr)
	case oauth.ErrCodeInvalidScope:
		ctx.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="koauth", error="insufficient_scope"`)
		return ctx.Status(fiber.StatusForbidden).JSON(oauthErr)
	}
	return WriteOAuthError(ctx, err)
}

// RequireScopes only lets requests through that present a valid bearer token
// granted every given scope.
func RequireScopes(registry *auth.Registry, scopes ...string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		principal, err := registry.Authenticate(ctx, auth.StrategyBearer)
		if errors.Is(err, auth.ErrNoCredentials) {
			err = oauth.NewUnauthorizedClientError("access token is required")
		}
		if err != nil {
			return WriteGuardError(ctx, err)
		}
		if err := principal.Auth.Require(scopes...); err != nil {
			return WriteGuardError(ctx, err)
		}
		ctx.Locals(authContextKey, principal.Auth)
		return ctx.Next()
	}
}

// AuthContext returns the token context stored by RequireScopes.
func AuthContext(ctx *fiber.Ctx) *oauth.AuthContext {
	authCtx, _ := ctx.Locals(authContextKey).(*oauth.AuthContext)
	return authCtx
}
