package captcha

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrInvalidCaptcha = errors.New("invalid captcha")
)

type CaptchaVerifier interface {
	Verify(ctx *fiber.Ctx) error
}

var verifier CaptchaVerifier = NewNullVerifier()

func SetVerifier(v CaptchaVerifier) {
	if v == nil {
		v = NewNullVerifier()
	}
	verifier = v
}

func Verify(ctx *fiber.Ctx) error {
	return verifier.Verify(ctx)
}

type NullVerifier struct{}

func (v *NullVerifier) Verify(ctx *fiber.Ctx) error {
	return nil
}

func NewNullVerifier() *NullVerifier {
	return &NullVerifier{}
}
