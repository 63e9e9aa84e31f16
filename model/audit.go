package model

import "time"

type AuditEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint      `gorm:"index;not null"`         // internal user id, 0 for client-only events
	Username  string    `gorm:"size:64;not null;index"` // snapshot of username at event time
	EventType string    `gorm:"size:64;not null;index"` // token_issued, code_replayed...
	GrantType string    `gorm:"size:32;index"`          // authorization_code, refresh_token... (optional)
	ClientID  string    `gorm:"size:64;index"`          // client the event relates to (optional)
	Scope     string    `gorm:"size:512"`               // space separated scopes (optional)
	Reason    string    `gorm:"size:512"`               // failure reason or context
	IP        string    `gorm:"size:45"`                // IPv4/IPv6
	UserAgent string    `gorm:"size:512"`               // user agent string
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}
