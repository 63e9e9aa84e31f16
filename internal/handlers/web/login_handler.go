package web

import (
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/middlewares/captcha"
	"github.com/khanghh/koauth/internal/middlewares/csrf"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/render"
	"github.com/khanghh/koauth/internal/social"
	"github.com/khanghh/koauth/internal/users"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
)

// LoginHandler handles local login and logout.
type LoginHandler struct {
	userService    UserService
	activity       ActivityLog
	oauthProviders []social.Provider
}

func (h *LoginHandler) getOAuthLoginURLs(next string) map[string]string {
	oauthLoginURLs := make(map[string]string)
	for _, provider := range h.oauthProviders {
		loginURL := "/oauth/" + provider.Name() + "/login"
		if next != "" {
			loginURL += "?" + url.Values{"next": {next}}.Encode()
		}
		oauthLoginURLs[provider.Name()] = loginURL
	}
	return oauthLoginURLs
}

func (h *LoginHandler) pageData(ctx *fiber.Ctx, next string) render.LoginPageData {
	return render.LoginPageData{
		Next:           next,
		CSRFToken:      csrf.Get(sessions.Get(ctx)),
		OAuthLoginURLs: h.getOAuthLoginURLs(next),
	}
}

func afterLogin(ctx *fiber.Ctx, next string) error {
	if next == "" {
		next = "/"
	}
	return ctx.Redirect(next)
}

// startSession replaces the current session with a fresh one bound to user.
func startSession(ctx *fiber.Ctx, user *model.User) error {
	sess, err := sessions.Reset(ctx, sessions.SessionData{})
	if err != nil {
		return err
	}
	sess.Login(user.ID, ctx.IP(), time.Now())
	return nil
}

func (h *LoginHandler) GetHome(ctx *fiber.Ctx) error {
	subject, err := currentSubject(ctx, h.userService)
	if err != nil {
		return err
	}
	if subject == nil {
		return redirect(ctx, "/login")
	}
	user, err := h.userService.GetUserByID(ctx.UserContext(), subject.UserID)
	if err != nil {
		return err
	}
	pageData := render.HomePageData{
		Username:  user.Username,
		FullName:  user.FullName,
		Email:     user.Email,
		Picture:   user.Picture,
		CSRFToken: csrf.Get(sessions.Get(ctx)),
	}
	if h.activity != nil {
		events, err := h.activity.Recent(ctx.UserContext(), user.ID, params.AccountActivityLimit)
		if err != nil {
			slog.Warn("Could not load account activity", "user_id", user.ID, "error", err)
		}
		for _, event := range events {
			pageData.Activity = append(pageData.Activity, render.ActivityItem{
				Event:    event.EventType,
				ClientID: event.ClientID,
				IP:       event.IP,
				Time:     event.CreatedAt,
			})
		}
	}
	return render.RenderHomePage(ctx, pageData)
}

func (h *LoginHandler) GetLogin(ctx *fiber.Ctx) error {
	next := safeNext(ctx.Query("next"))
	session := sessions.Get(ctx)
	if session.IsLoggedIn() && ctx.Query("error") == "" {
		return afterLogin(ctx, next)
	}

	pageData := h.pageData(ctx, next)
	pageData.ErrorMsg = mapLoginError(ctx.Query("error"))
	return render.RenderLoginPage(ctx, pageData)
}

func (h *LoginHandler) PostLogin(ctx *fiber.Ctx) error {
	next := safeNext(ctx.FormValue("next"))
	username := ctx.FormValue("username")
	password := ctx.FormValue("password")

	pageData := h.pageData(ctx, next)
	pageData.Identifier = username

	if err := captcha.Verify(ctx); err != nil {
		pageData.ErrorMsg = MsgInvalidCaptcha
		return render.RenderLoginPage(ctx, pageData)
	}

	user, err := h.userService.Authenticate(ctx.UserContext(), username, password)
	switch {
	case errors.Is(err, users.ErrWrongCredentials):
		pageData.ErrorMsg = MsgLoginWrongCredentials
		return render.RenderLoginPage(ctx, pageData)
	case errors.Is(err, users.ErrUserDisabled):
		pageData.ErrorMsg = MsgAccountDisabled
		return render.RenderLoginPage(ctx, pageData)
	case err != nil:
		return err
	}

	if err := startSession(ctx, user); err != nil {
		return err
	}
	return afterLogin(ctx, next)
}

func (h *LoginHandler) PostLogout(ctx *fiber.Ctx) error {
	return forceLogout(ctx, "")
}

// NewLoginHandler returns a new instance of LoginHandler.
func NewLoginHandler(userService UserService, activity ActivityLog, oauthProviders []social.Provider) *LoginHandler {
	return &LoginHandler{
		userService:    userService,
		activity:       activity,
		oauthProviders: oauthProviders,
	}
}
