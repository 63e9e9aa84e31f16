package api

import (
	"context"

	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/model"
)

type TokenService interface {
	HandleTokenRequest(ctx context.Context, req oauth.TokenRequest, client *model.Client) (*oauth.TokenResponse, error)
	RevokeToken(ctx context.Context, client *model.Client, token string) error
}

type AccessGuard interface {
	RevokeAllForUser(ctx context.Context, bearer string) error
}
