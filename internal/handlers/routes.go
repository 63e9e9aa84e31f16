// Package handlers mounts the http endpoints of the server.
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/auth"
	"github.com/khanghh/koauth/internal/handlers/api"
	"github.com/khanghh/koauth/internal/handlers/web"
	"github.com/khanghh/koauth/internal/middlewares"
	"github.com/khanghh/koauth/internal/middlewares/csrf"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/social"
)

type Dependencies struct {
	StaticDir        string
	SessionConfig    sessions.Config
	Registry         *auth.Registry
	AuthorizeService web.AuthorizeService
	UserService      web.UserService
	Activity         web.ActivityLog
	TokenService     api.TokenService
	AccessGuard      api.AccessGuard
	LoginStates      *web.LoginStates
	OAuthProviders   []social.Provider
	Discovery        *api.DiscoveryHandler
}

func SetupRoutes(router fiber.Router, deps Dependencies) {
	// handlers
	var (
		tokenHandler  = api.NewTokenHandler(deps.TokenService, deps.Registry)
		userHandler   = api.NewUserHandler(deps.AccessGuard)
		authHandler   = web.NewAuthHandler(deps.AuthorizeService, deps.UserService)
		loginHandler  = web.NewLoginHandler(deps.UserService, deps.Activity, deps.OAuthProviders)
		oauthHandler  = web.NewOAuthHandler(deps.UserService, deps.LoginStates, deps.OAuthProviders)
		requireOpenID = middlewares.RequireScopes(deps.Registry, oauth.ScopeOpenID)
	)

	router.Use(middlewares.InjectRequestInfo())
	if deps.StaticDir != "" {
		router.Static("/static", deps.StaticDir)
	}

	// client facing endpoints, authenticated per request
	router.Get("/.well-known/openid-configuration", deps.Discovery.GetOpenIDConfiguration)
	router.Post("/token", tokenHandler.PostToken)
	router.Post("/revoke", tokenHandler.PostRevoke)
	router.Get("/userinfo", requireOpenID, userHandler.GetUserInfo)
	router.Post("/userinfo", requireOpenID, userHandler.GetUserInfo)
	router.Post("/logout-everywhere", userHandler.PostLogoutEverywhere)

	// browser endpoints
	router.Use(sessions.Initialize(deps.SessionConfig))
	router.Use(csrf.New(csrf.Config{}))
	router.Get("/", loginHandler.GetHome)
	router.Get("/login", loginHandler.GetLogin)
	router.Post("/login", loginHandler.PostLogin)
	router.Post("/logout", loginHandler.PostLogout)
	router.Get("/oauth/:provider/login", oauthHandler.GetOAuthLogin)
	router.Get("/oauth/:provider/callback", oauthHandler.GetOAuthCallback)
	router.Get("/authorize", authHandler.GetAuthorize)
	router.Get("/consent", authHandler.GetConsent)
	router.Post("/consent", authHandler.PostConsent)
}
