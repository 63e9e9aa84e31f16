package oauth

import (
	"context"
	"time"
)

const (
	EventTokenIssued      = "token_issued"
	EventTokenRevoked     = "token_revoked"
	EventCodeReplay       = "code_replay"
	EventRefreshReplay    = "refresh_replay"
	EventConsentGranted   = "consent_granted"
	EventConsentDenied    = "consent_denied"
	EventLogoutEverywhere = "logout_everywhere"
)

// AuditEvent describes a security relevant action taken by the engine.
type AuditEvent struct {
	Type      string
	UserID    uint
	ClientID  string
	GrantType string
	Scope     []string
	Reason    string
}

// Auditor receives audit events. Implementations must not block the caller
// on failures.
type Auditor interface {
	Record(ctx context.Context, event AuditEvent)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEvent) {}

// Options carries the collaborators shared by the engine services.
type Options struct {
	Clock   func() time.Time
	Auditor Auditor
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Auditor == nil {
		o.Auditor = nopAuditor{}
	}
	return o
}
