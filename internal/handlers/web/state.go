package web

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/store"
	"github.com/khanghh/koauth/params"
)

var ErrInvalidLoginState = errors.New("invalid login state")

type loginState struct {
	Provider string `json:"provider" redis:"provider"`
	Next     string `json:"next"     redis:"next"`
}

// LoginStates carries the return path of a social login through the
// provider redirect. The state value is signed and can be consumed once.
type LoginStates struct {
	codec *codec.Codec
	store store.Store[loginState]
}

func (s *LoginStates) Issue(ctx context.Context, provider, next string) (string, error) {
	nonce := uuid.NewString()
	err := s.store.Set(ctx, nonce, loginState{Provider: provider, Next: next}, params.LoginStateExpiration)
	if err != nil {
		return "", err
	}
	return s.codec.SignState(map[string]string{
		"nonce":    nonce,
		"provider": provider,
	}, params.LoginStateExpiration)
}

// Consume verifies the state returned by provider and returns the saved
// return path.
func (s *LoginStates) Consume(ctx context.Context, provider, state string) (string, error) {
	data, _, err := s.codec.VerifyState(state)
	if err != nil {
		return "", ErrInvalidLoginState
	}
	if data["provider"] != provider || data["nonce"] == "" {
		return "", ErrInvalidLoginState
	}
	saved, err := s.store.Take(ctx, data["nonce"])
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidLoginState
	} else if err != nil {
		return "", err
	}
	if saved.Provider != provider {
		return "", ErrInvalidLoginState
	}
	return saved.Next, nil
}

func NewLoginStates(codec *codec.Codec, storage store.Storage) *LoginStates {
	return &LoginStates{
		codec: codec,
		store: store.New[loginState](storage, params.LoginStateKeyPrefix),
	}
}
