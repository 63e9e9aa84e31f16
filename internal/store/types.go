package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type Storage interface {
	Get(ctx context.Context, key string, val any) error
	Set(ctx context.Context, key string, val any, expiresIn time.Duration) error
	Save(ctx context.Context, key string, val any) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, expiresAt time.Time) error
}

type Store[T any] interface {
	Storage() Storage
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, val T, expiresIn time.Duration) error
	Save(ctx context.Context, key string, val T) error
	Delete(ctx context.Context, key string) error
	// Take returns the value and removes it. Only one concurrent caller can
	// take a given key, the others get ErrNotFound.
	Take(ctx context.Context, key string) (T, error)
	Expire(ctx context.Context, key string, expiresAt time.Time) error
}
