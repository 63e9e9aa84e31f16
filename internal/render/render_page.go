package render

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type LoginPageData struct {
	Identifier     string
	Next           string
	CSRFToken      string
	ErrorMsg       string
	OAuthLoginURLs map[string]string
}

type ScopeItem struct {
	Name        string
	Description string
	Granted     bool
}

type ConsentPageData struct {
	FlowID     string
	ClientName string
	Username   string
	CSRFToken  string
	Scopes     []ScopeItem
}

func renderPage(ctx *fiber.Ctx, status int, name string, vars fiber.Map) error {
	return ctx.Status(status).Render(name, mergeVars(vars))
}

func RenderLoginPage(ctx *fiber.Ctx, data LoginPageData) error {
	status := fiber.StatusOK
	if data.ErrorMsg != "" {
		status = fiber.StatusUnauthorized
	}
	return renderPage(ctx, status, "login", fiber.Map{
		"identifier":     data.Identifier,
		"next":           data.Next,
		"csrfToken":      data.CSRFToken,
		"errorMsg":       data.ErrorMsg,
		"oauthLoginURLs": data.OAuthLoginURLs,
	})
}

func RenderConsentPage(ctx *fiber.Ctx, data ConsentPageData) error {
	return renderPage(ctx, fiber.StatusOK, "consent", fiber.Map{
		"flowID":     data.FlowID,
		"clientName": data.ClientName,
		"username":   data.Username,
		"csrfToken":  data.CSRFToken,
		"scopes":     data.Scopes,
	})
}

// RenderErrorPage shows an error that cannot be sent back to the client's
// redirect URI.
func RenderErrorPage(ctx *fiber.Ctx, status int, title, message string) error {
	return renderPage(ctx, status, "error", fiber.Map{
		"status":  status,
		"title":   title,
		"message": message,
	})
}

func RenderBadRequestError(ctx *fiber.Ctx, message string) error {
	return RenderErrorPage(ctx, fiber.StatusBadRequest, "Bad request", message)
}

func RenderForbiddenError(ctx *fiber.Ctx) error {
	return RenderErrorPage(ctx, fiber.StatusForbidden, "Forbidden", "You are not allowed to access this page.")
}

func RenderNotFoundError(ctx *fiber.Ctx) error {
	return RenderErrorPage(ctx, fiber.StatusNotFound, "Not found", "The page you are looking for does not exist.")
}

func RenderInternalServerError(ctx *fiber.Ctx) error {
	return RenderErrorPage(ctx, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
}

// ActivityItem is one audit event shown on the account page.
type ActivityItem struct {
	Event    string
	ClientID string
	IP       string
	Time     time.Time
}

type HomePageData struct {
	Username  string
	FullName  string
	Email     string
	Picture   string
	CSRFToken string
	Activity  []ActivityItem
}

func RenderHomePage(ctx *fiber.Ctx, data HomePageData) error {
	return renderPage(ctx, fiber.StatusOK, "home", fiber.Map{
		"username":  data.Username,
		"fullName":  data.FullName,
		"email":     data.Email,
		"picture":   data.Picture,
		"csrfToken": data.CSRFToken,
		"activity":  data.Activity,
	})
}
