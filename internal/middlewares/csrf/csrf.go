package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"path"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/middlewares/sessions"
	"github.com/khanghh/koauth/params"
)

var (
	ErrInvalidToken = errors.New("invalid CSRF token")
)

// Get returns the form token of the session, issuing a new one when it is
// missing or expired.
func Get(session *sessions.Session) string {
	if session.CSRFToken == "" || time.Now().UnixMilli() >= session.CSRFExpiresAt {
		session.CSRFToken = randomToken()
		session.CSRFExpiresAt = time.Now().Add(params.CSRFTokenExpiration).UnixMilli()
	}
	return session.CSRFToken
}

func Verify(ctx *fiber.Ctx) bool {
	token := ctx.Get("X-CSRF-Token")
	if token == "" && ctx.Method() == fiber.MethodPost {
		token = ctx.FormValue("_csrf")
	}

	session := sessions.Get(ctx)
	if token == "" || session.CSRFToken == "" || time.Now().UnixMilli() >= session.CSRFExpiresAt {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(token)) == 1
}

func randomToken() string {
	const tokenLength = 32
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate CSRF token: " + err.Error())
	}
	return hex.EncodeToString(b)
}

type Config struct {
	ExcludePaths []string
}

// New rejects unsafe requests that do not carry the session's form token.
func New(config Config) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		for _, p := range config.ExcludePaths {
			if ok, _ := path.Match(p, ctx.Path()); ok {
				return ctx.Next()
			}
		}
		switch ctx.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return ctx.Next()
		}
		if !Verify(ctx) {
			return fiber.NewError(fiber.StatusForbidden, ErrInvalidToken.Error())
		}
		return ctx.Next()
	}
}
