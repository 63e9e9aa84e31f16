package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
)

// AuthContext is the result of a successful bearer token check.
type AuthContext struct {
	Token *model.AccessToken
	// User is nil for client_credentials tokens.
	User     *model.User
	ClientID string
	Scope    []string
}

// Require checks the token carries every scope in scopes.
func (a *AuthContext) Require(scopes ...string) error {
	if missing := missingScopes(a.Scope, scopes); len(missing) > 0 {
		return NewInvalidScopeError("missing required scope " + joinWithAnd(missing))
	}
	return nil
}

// AccessGuard protects resources with bearer access tokens.
type AccessGuard struct {
	repos   *Repositories
	clock   func() time.Time
	auditor Auditor
}

func errInvalidAccessToken() *OAuthError {
	return NewUnauthorizedClientError("access token is not valid")
}

// RequireScopes validates bearer and checks it carries every scope in scopes.
func (g *AccessGuard) RequireScopes(ctx context.Context, bearer string, scopes ...string) (*AuthContext, error) {
	if bearer == "" {
		return nil, errInvalidAccessToken()
	}
	token, err := g.repos.AccessTokens.First(ctx, repo.Eq("token", bearer))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errInvalidAccessToken()
	} else if err != nil {
		return nil, NewServerError("")
	}
	if token.IsExpired(g.clock()) {
		return nil, errInvalidAccessToken()
	}
	authCtx := &AuthContext{
		Token:    token,
		ClientID: token.ClientID,
		Scope:    token.Scope,
	}
	if err := authCtx.Require(scopes...); err != nil {
		return nil, err
	}
	if token.UserID != 0 {
		user, err := g.repos.Users.First(ctx, repo.Eq("id", token.UserID))
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errInvalidAccessToken()
		} else if err != nil {
			return nil, NewServerError("")
		}
		authCtx.User = user
	}
	return authCtx, nil
}

// RevokeAllForUser logs the token owner out of every client by removing all
// their codes and tokens.
func (g *AccessGuard) RevokeAllForUser(ctx context.Context, bearer string) error {
	authCtx, err := g.RequireScopes(ctx, bearer)
	if err != nil {
		return err
	}
	if authCtx.User == nil {
		return NewUnauthorizedClientError("access token is not bound to a user")
	}
	g.auditor.Record(ctx, AuditEvent{
		Type:     EventLogoutEverywhere,
		UserID:   authCtx.User.ID,
		ClientID: authCtx.ClientID,
	})
	if err := revokeUser(ctx, g.repos, authCtx.User.ID); err != nil {
		return NewServerError("failed to revoke every credential")
	}
	return nil
}

func NewAccessGuard(repos *Repositories, opts Options) *AccessGuard {
	opts = opts.withDefaults()
	return &AccessGuard{
		repos:   repos,
		clock:   opts.Clock,
		auditor: opts.Auditor,
	}
}
