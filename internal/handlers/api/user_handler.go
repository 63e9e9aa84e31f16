package api

import (
	"slices"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/auth"
	"github.com/khanghh/koauth/internal/middlewares"
	"github.com/khanghh/koauth/internal/oauth"
)

// UserHandler serves protected resources of the token owner.
type UserHandler struct {
	guard AccessGuard
}

// GetUserInfo must be mounted behind middlewares.RequireScopes.
func (h *UserHandler) GetUserInfo(ctx *fiber.Ctx) error {
	authCtx := middlewares.AuthContext(ctx)
	if authCtx == nil || authCtx.User == nil {
		return middlewares.WriteGuardError(ctx, oauth.NewUnauthorizedClientError("access token is not bound to a user"))
	}
	user := authCtx.User
	resp := UserInfoResponse{Subject: strconv.FormatUint(uint64(user.ID), 10)}
	if slices.Contains(authCtx.Scope, oauth.ScopeProfile) {
		resp.Name = user.FullName
		resp.PreferredUsername = user.Username
		resp.Picture = user.Picture
	}
	if slices.Contains(authCtx.Scope, oauth.ScopeEmail) {
		verified := user.EmailVerified
		resp.Email = user.Email
		resp.EmailVerified = &verified
	}
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.JSON(resp)
}

// PostLogoutEverywhere revokes every credential of the user owning the
// bearer token.
func (h *UserHandler) PostLogoutEverywhere(ctx *fiber.Ctx) error {
	bearer := auth.BearerToken(ctx)
	if bearer == "" {
		return middlewares.WriteGuardError(ctx, oauth.NewUnauthorizedClientError("access token is required"))
	}
	if err := h.guard.RevokeAllForUser(ctx.UserContext(), bearer); err != nil {
		return middlewares.WriteGuardError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func NewUserHandler(guard AccessGuard) *UserHandler {
	return &UserHandler{guard: guard}
}
