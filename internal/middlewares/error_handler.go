package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/render"
)

func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	switch code {
	case fiber.StatusBadRequest:
		return render.RenderBadRequestError(ctx, fiberErr.Message)
	case fiber.StatusForbidden:
		return render.RenderForbiddenError(ctx)
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return render.RenderNotFoundError(ctx)
	default:
		slog.Error("unhandled error", "path", ctx.Path(), "code", code, "error", err)
		return render.RenderInternalServerError(ctx)
	}
}
