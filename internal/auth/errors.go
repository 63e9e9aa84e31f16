package auth

import "errors"

var (
	ErrNoCredentials   = errors.New("no credentials in request")
	ErrUnknownStrategy = errors.New("unknown authentication strategy")
)
