package api

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/schema"
	"github.com/khanghh/koauth/internal/auth"
	"github.com/khanghh/koauth/internal/middlewares"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/model"
)

// TokenHandler serves the token and revocation endpoints.
type TokenHandler struct {
	tokenService TokenService
	registry     *auth.Registry
	decoder      *schema.Decoder
}

func postValues(ctx *fiber.Ctx) url.Values {
	values := url.Values{}
	ctx.Request().PostArgs().VisitAll(func(key, value []byte) {
		values.Add(string(key), string(value))
	})
	return values
}

// authenticateClient resolves the calling client from HTTP Basic or the
// client_id and client_secret form fields.
func (h *TokenHandler) authenticateClient(ctx *fiber.Ctx) (*model.Client, error) {
	principal, err := h.registry.Authenticate(ctx, auth.StrategyBasic, auth.StrategyClientPassword)
	if errors.Is(err, auth.ErrNoCredentials) {
		return nil, oauth.NewInvalidClientError("client authentication required")
	} else if err != nil {
		return nil, err
	}
	return principal.Client, nil
}

func (h *TokenHandler) PostToken(ctx *fiber.Ctx) error {
	var req oauth.TokenRequest
	if err := h.decoder.Decode(&req, postValues(ctx)); err != nil {
		return middlewares.WriteOAuthError(ctx, oauth.NewInvalidRequestError("malformed request body"))
	}
	client, err := h.authenticateClient(ctx)
	if err != nil {
		return middlewares.WriteOAuthError(ctx, err)
	}

	resp, err := h.tokenService.HandleTokenRequest(ctx.UserContext(), req, client)
	if err != nil {
		return middlewares.WriteOAuthError(ctx, err)
	}
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	ctx.Set(fiber.HeaderPragma, "no-cache")
	return ctx.JSON(resp)
}

func (h *TokenHandler) PostRevoke(ctx *fiber.Ctx) error {
	client, err := h.authenticateClient(ctx)
	if err != nil {
		return middlewares.WriteOAuthError(ctx, err)
	}
	if err := h.tokenService.RevokeToken(ctx.UserContext(), client, ctx.FormValue("token")); err != nil {
		return middlewares.WriteOAuthError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusOK)
}

func NewTokenHandler(tokenService TokenService, registry *auth.Registry) *TokenHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &TokenHandler{
		tokenService: tokenService,
		registry:     registry,
		decoder:      decoder,
	}
}
