package web

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/social"
)

func makeOAuthProvidersMap(oauthProviders []social.Provider) map[string]social.Provider {
	oauthProvidersMap := make(map[string]social.Provider)
	for _, provider := range oauthProviders {
		oauthProvidersMap[provider.Name()] = provider
	}
	return oauthProvidersMap
}

// OAuthHandler signs users in through third party providers.
type OAuthHandler struct {
	userService    UserService
	loginStates    *LoginStates
	oauthProviders map[string]social.Provider
}

func NewOAuthHandler(userService UserService, loginStates *LoginStates, oauthProviders []social.Provider) *OAuthHandler {
	return &OAuthHandler{
		userService:    userService,
		loginStates:    loginStates,
		oauthProviders: makeOAuthProvidersMap(oauthProviders),
	}
}

func (h *OAuthHandler) GetOAuthLogin(ctx *fiber.Ctx) error {
	provider, ok := h.oauthProviders[ctx.Params("provider")]
	if !ok {
		return redirect(ctx, "/login", "error", "unsupported_provider")
	}
	state, err := h.loginStates.Issue(ctx.UserContext(), provider.Name(), safeNext(ctx.Query("next")))
	if err != nil {
		return err
	}
	return ctx.Redirect(provider.GetAuthCodeURL(state))
}

func (h *OAuthHandler) GetOAuthCallback(ctx *fiber.Ctx) error {
	providerName := ctx.Params("provider")
	provider, ok := h.oauthProviders[providerName]
	if !ok {
		return redirect(ctx, "/login", "error", "unsupported_provider")
	}

	next, err := h.loginStates.Consume(ctx.UserContext(), providerName, ctx.Query("state"))
	if errors.Is(err, ErrInvalidLoginState) {
		return redirect(ctx, "/login", "error", "invalid_state")
	} else if err != nil {
		return err
	}
	if ctx.Query("error") != "" || ctx.Query("code") == "" {
		return redirect(ctx, "/login", "next", next, "error", "oauth_failed")
	}

	oauthToken, err := provider.ExchangeToken(ctx.UserContext(), ctx.Query("code"))
	if err != nil {
		slog.Warn("OAuth code exchange failed", "provider", providerName, "error", err)
		return redirect(ctx, "/login", "next", next, "error", "oauth_failed")
	}
	canonical, err := provider.GetUserInfo(ctx.UserContext(), oauthToken)
	if err != nil {
		slog.Warn("OAuth profile fetch failed", "provider", providerName, "error", err)
		return redirect(ctx, "/login", "next", next, "error", "oauth_failed")
	}

	user, err := h.userService.UpsertFromProfile(ctx.UserContext(), canonical)
	if err != nil {
		return err
	}
	if user.Disabled {
		return redirect(ctx, "/login", "error", "account_disabled")
	}
	if err := startSession(ctx, user); err != nil {
		return err
	}
	return afterLogin(ctx, next)
}
