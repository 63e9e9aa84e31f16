package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
)

type expiringValue struct {
	Data      json.RawMessage `json:"d"`
	ExpiresAt int64           `json:"e,omitempty"` // unix ms, 0 means never
}

// KVStorage adapts a fiber.Storage (memory, redis, ...) by storing values as
// JSON documents.
type KVStorage struct {
	storage fiber.Storage
}

func (s *KVStorage) load(key string) (*expiringValue, error) {
	raw, err := s.storage.Get(key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	var ev expiringValue
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	if ev.ExpiresAt != 0 && time.Now().UnixMilli() >= ev.ExpiresAt {
		return nil, ErrNotFound
	}
	return &ev, nil
}

func (s *KVStorage) store(key string, ev *expiringValue) error {
	var exp time.Duration
	if ev.ExpiresAt != 0 {
		exp = time.Until(time.UnixMilli(ev.ExpiresAt))
		if exp <= 0 {
			return s.storage.Delete(key)
		}
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.storage.Set(key, raw, exp)
}

func (s *KVStorage) Get(ctx context.Context, key string, val any) error {
	ev, err := s.load(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(ev.Data, val)
}

func (s *KVStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	ev := &expiringValue{Data: data}
	if expiresIn > 0 {
		ev.ExpiresAt = time.Now().Add(expiresIn).UnixMilli()
	}
	return s.store(key, ev)
}

func (s *KVStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, 0)
}

func (s *KVStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.load(key); err != nil {
		return err
	}
	return s.storage.Delete(key)
}

func (s *KVStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	ev, err := s.load(key)
	if err != nil {
		return err
	}
	ev.ExpiresAt = expiresAt.UnixMilli()
	return s.store(key, ev)
}

func NewKVStorage(storage fiber.Storage) *KVStorage {
	return &KVStorage{storage: storage}
}
