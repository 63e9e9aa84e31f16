package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/audit"
)

// InjectRequestInfo makes the caller address available to audit records.
func InjectRequestInfo() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		info := audit.RequestInfo{
			IP:        ctx.IP(),
			UserAgent: ctx.Get(fiber.HeaderUserAgent),
		}
		ctx.SetUserContext(audit.WithRequestInfo(ctx.UserContext(), info))
		return ctx.Next()
	}
}
