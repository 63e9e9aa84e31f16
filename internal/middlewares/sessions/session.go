package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/khanghh/koauth/internal/store"
)

// SessionData is the persisted part of a browser session. Times are unix
// milliseconds so the redis hash backend can scan them.
type SessionData struct {
	IP            string `json:"ip,omitempty"              redis:"ip"`              // client ip address
	UserID        uint   `json:"user_id,omitempty"         redis:"user_id"`         // user id
	LoginTime     int64  `json:"login_time,omitempty"      redis:"login_time"`      // last login time
	LastSeen      int64  `json:"last_seen,omitempty"       redis:"last_seen"`       // last request time
	ExpireTime    int64  `json:"expire_time,omitempty"     redis:"expire_time"`     // session expire time
	CSRFToken     string `json:"csrf_token,omitempty"      redis:"csrf_token"`      // form token
	CSRFExpiresAt int64  `json:"csrf_expires_at,omitempty" redis:"csrf_expires_at"` // form token expire time
}

func (s *SessionData) IsLoggedIn() bool {
	return s.UserID != 0
}

type Session struct {
	SessionData               // basic session info
	id          string        // session id
	storage     store.Storage // storage backend
	fresh       bool          // is session newly created
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Could not generate session id", "error", err)
		return ""
	}
	return hex.EncodeToString(b)
}

func newSession(storage store.Storage) *Session {
	return &Session{
		id:      generateSessionID(),
		storage: storage,
		fresh:   true,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) IsFresh() bool {
	return s.fresh
}

// Login binds the session to a user.
func (s *Session) Login(userID uint, ip string, now time.Time) {
	s.UserID = userID
	s.IP = ip
	s.LoginTime = now.UnixMilli()
}
