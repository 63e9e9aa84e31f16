package model

import "time"

const (
	StatusCreated = "created"
	StatusUsed    = "used"
)

const (
	TokenTypeBearer     = "Bearer"
	TokenTypeUserAccess = "user-access-token"
)

// AuthorizationCode is a single-use credential issued by the authorize
// endpoint. Its ID identifies the credential lineage ("auth") shared by the
// access and refresh tokens minted from it.
type AuthorizationCode struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	ClientID     string    `gorm:"size:64;not null;index"`
	UserID       uint      `gorm:"not null;index"`
	Sub          string    `gorm:"size:64;not null"`
	Scope        []string  `gorm:"serializer:json;not null"`
	Code         string    `gorm:"size:64;not null;uniqueIndex"`
	RedirectURI  string    `gorm:"size:1024;not null"`
	ResponseType string    `gorm:"size:64;not null"`
	Nonce        string    `gorm:"size:256;not null;default:''"`
	Status       string    `gorm:"size:16;not null;default:created;index"`
	ExpiresAt    time.Time `gorm:"not null;index"`
	CreatedAt    time.Time
}

func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type AccessToken struct {
	ID        uint     `gorm:"primaryKey;autoIncrement"`
	Token     string   `gorm:"size:64;not null;uniqueIndex"`
	Type      string   `gorm:"size:32;not null"`
	IDToken   string   `gorm:"type:text"`
	ExpiresIn int64    `gorm:"not null"`       // lifetime in seconds
	ExpiresOn int64    `gorm:"not null;index"` // epoch milliseconds
	Scope     []string `gorm:"serializer:json;not null"`
	UserID    uint     `gorm:"not null;default:0;index"`
	ClientID  string   `gorm:"size:64;not null;index"`
	AuthID    *uint    `gorm:"index"`
	CreatedAt time.Time
}

func (t *AccessToken) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= t.ExpiresOn
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Token     string    `gorm:"size:64;not null;uniqueIndex"`
	Status    string    `gorm:"size:16;not null;default:created;index"`
	AuthID    uint      `gorm:"not null;index"`
	Scope     []string  `gorm:"serializer:json;not null"`
	UserID    uint      `gorm:"not null;index"`
	ClientID  string    `gorm:"size:64;not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Consent records the scopes a user approved for a client. There is at most
// one row per (user, client).
type Consent struct {
	ID        uint     `gorm:"primaryKey;autoIncrement"`
	UserID    uint     `gorm:"not null;index:idx_consent_user_client"`
	ClientID  string   `gorm:"size:64;not null;index:idx_consent_user_client"`
	Scopes    []string `gorm:"serializer:json;not null"`
	CreatedAt time.Time
}
