package web

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/schema"
	"github.com/khanghh/koauth/internal/middlewares/csrf"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/render"
)

// AuthHandler serves the browser side of the authorization endpoint.
type AuthHandler struct {
	authorizeService AuthorizeService
	userService      UserService
	decoder          *schema.Decoder
}

func (h *AuthHandler) GetAuthorize(ctx *fiber.Ctx) error {
	query, err := url.ParseQuery(string(ctx.Request().URI().QueryString()))
	if err != nil {
		return render.RenderBadRequestError(ctx, MsgInvalidRequest)
	}
	var req oauth.AuthorizeRequest
	if err := h.decoder.Decode(&req, query); err != nil {
		return render.RenderBadRequestError(ctx, MsgInvalidRequest)
	}

	subject, err := currentSubject(ctx, h.userService)
	if err != nil {
		return err
	}
	location, err := h.authorizeService.HandleAuthorize(ctx.UserContext(), req, subject)
	if err != nil {
		return sendOAuthError(ctx, err)
	}
	return ctx.Redirect(location)
}

func (h *AuthHandler) GetConsent(ctx *fiber.Ctx) error {
	flowID := ctx.Query("flow")
	subject, err := currentSubject(ctx, h.userService)
	if err != nil {
		return err
	}
	if subject == nil {
		return redirect(ctx, "/login", "next", "/consent?"+url.Values{"flow": {flowID}}.Encode())
	}

	prompt, err := h.authorizeService.ConsentPrompt(ctx.UserContext(), flowID, subject)
	if errors.Is(err, oauth.ErrFlowNotFound) || errors.Is(err, oauth.ErrFlowMismatch) || errors.Is(err, oauth.ErrClientNotFound) {
		return render.RenderBadRequestError(ctx, MsgConsentExpired)
	} else if err != nil {
		return err
	}

	scopes := make([]render.ScopeItem, 0, len(prompt.Scopes))
	for _, scope := range prompt.Scopes {
		scopes = append(scopes, render.ScopeItem{
			Name:        scope.Name,
			Description: scope.Description,
			Granted:     scope.Granted,
		})
	}
	return render.RenderConsentPage(ctx, render.ConsentPageData{
		FlowID:     prompt.Flow.ID,
		ClientName: prompt.ClientName,
		Username:   subject.Username,
		CSRFToken:  csrf.Get(sessions.Get(ctx)),
		Scopes:     scopes,
	})
}

func (h *AuthHandler) PostConsent(ctx *fiber.Ctx) error {
	subject, err := currentSubject(ctx, h.userService)
	if err != nil {
		return err
	}
	if subject == nil {
		return redirect(ctx, "/login", "error", "invalid_state")
	}

	approved := ctx.FormValue("decision") == "approve"
	location, err := h.authorizeService.CompleteConsent(ctx.UserContext(), ctx.FormValue("flow"), subject, approved)
	if errors.Is(err, oauth.ErrFlowNotFound) || errors.Is(err, oauth.ErrFlowMismatch) {
		return render.RenderBadRequestError(ctx, MsgConsentExpired)
	} else if err != nil {
		return sendOAuthError(ctx, err)
	}
	return ctx.Redirect(location)
}

func NewAuthHandler(authorizeService AuthorizeService, userService UserService) *AuthHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &AuthHandler{
		authorizeService: authorizeService,
		userService:      userService,
		decoder:          decoder,
	}
}
