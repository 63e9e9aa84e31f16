package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/render"
	"github.com/khanghh/koauth/internal/users"
)

func redirect(ctx *fiber.Ctx, location string, values ...any) error {
	url, err := url.Parse(location)
	if err != nil {
		return err
	}

	query := url.Query()
	for i := 0; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			slog.Error("invalid query parameter", "key", i)
			continue
		}
		if v := values[i+1]; v != nil {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			query.Set(key, fmt.Sprint(values[i+1]))
		}
	}

	url.RawQuery = query.Encode()
	return ctx.Redirect(url.String())
}

// safeNext only keeps local paths so login never redirects off site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func forceLogout(ctx *fiber.Ctx, errCode string) error {
	if err := sessions.Destroy(ctx); err != nil {
		slog.Warn("Could not destroy session", "error", err)
	}
	return redirect(ctx, "/login", "error", errCode)
}

// currentSubject returns the logged in user of the session, or nil.
func currentSubject(ctx *fiber.Ctx, userService UserService) (*oauth.Subject, error) {
	session := sessions.Get(ctx)
	if !session.IsLoggedIn() {
		return nil, nil
	}
	user, err := userService.GetUserByID(ctx.UserContext(), session.UserID)
	if errors.Is(err, users.ErrUserNotFound) || (err == nil && user.Disabled) {
		return nil, sessions.Destroy(ctx)
	} else if err != nil {
		return nil, err
	}
	return &oauth.Subject{
		UserID:        user.ID,
		Username:      user.Username,
		EmailVerified: user.EmailVerified,
	}, nil
}

var errorTitles = map[string]string{
	oauth.ErrCodeInvalidRequest:          "Invalid request",
	oauth.ErrCodeInvalidClient:           "Unknown application",
	oauth.ErrCodeUnauthorizedClient:      "Application not allowed",
	oauth.ErrCodeInvalidScope:            "Invalid scope",
	oauth.ErrCodeUnsupportedResponseType: "Unsupported response type",
	oauth.ErrCodeAccessDenied:            "Access denied",
	oauth.ErrCodeServerError:             "Something went wrong",
}

// sendOAuthError redirects the error to the client when its redirect uri is
// known to be safe, otherwise renders it.
func sendOAuthError(ctx *fiber.Ctx, err error) error {
	oauthErr := oauth.AsOAuthError(err)
	if oauthErr.Code == oauth.ErrCodeServerError {
		slog.Error("Authorize request failed", "path", ctx.Path(), "error", err)
	}
	if location, ok := oauthErr.RedirectLocation(); ok {
		return ctx.Redirect(location)
	}
	title, ok := errorTitles[oauthErr.Code]
	if !ok {
		title = "Request failed"
	}
	return render.RenderErrorPage(ctx, oauthErr.StatusCode(), title, oauthErr.Description)
}
