package users

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserDisabled      = errors.New("user is disabled")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrEmailRegistered   = errors.New("email already registered")
	ErrWrongCredentials  = errors.New("wrong username or password")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrUsernameExhausted = errors.New("could not find a free username")
)
