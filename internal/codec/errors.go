package codec

import "errors"

var (
	ErrTokenInvalid     = errors.New("invalid token")
	ErrMissingSecret    = errors.New("missing signing secret")
	ErrUnexpectedMethod = errors.New("unexpected signing method")
)
