package web

import (
	"context"

	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/profile"
	"github.com/khanghh/koauth/model"
)

type AuthorizeService interface {
	HandleAuthorize(ctx context.Context, req oauth.AuthorizeRequest, subject *oauth.Subject) (string, error)
	ConsentPrompt(ctx context.Context, flowID string, subject *oauth.Subject) (*oauth.ConsentPrompt, error)
	CompleteConsent(ctx context.Context, flowID string, subject *oauth.Subject, approved bool) (string, error)
}

type UserService interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	Authenticate(ctx context.Context, identifier, password string) (*model.User, error)
	UpsertFromProfile(ctx context.Context, canonical *profile.CanonicalUser) (*model.User, error)
}

// ActivityLog lists the security events of an account.
type ActivityLog interface {
	Recent(ctx context.Context, userID uint, limit int) ([]*model.AuditEvent, error)
}
