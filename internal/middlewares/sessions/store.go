package sessions

import (
	"context"
	"time"
)

type Store struct {
	Config
}

func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	info := SessionData{}
	if err := s.Storage.Get(ctx, id, &info); err != nil {
		return nil, err
	}

	return &Session{
		SessionData: info,
		id:          id,
		storage:     s.Storage,
	}, nil
}

// Save persists the session data, a fresh or half expired session is
// written with a renewed expiration.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	now := time.Now()
	sess.LastSeen = now.UnixMilli()
	renew := time.UnixMilli(sess.ExpireTime).Sub(now) < (s.SessionMaxAge / 2)
	if sess.fresh || renew {
		sess.ExpireTime = now.Add(s.SessionMaxAge).UnixMilli()
		return s.Storage.Set(ctx, sess.id, &sess.SessionData, s.SessionMaxAge)
	}
	return s.Storage.Save(ctx, sess.id, &sess.SessionData)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.Storage.Delete(ctx, id)
}
