package oauth

import (
	"context"

	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"gorm.io/gorm"
)

// Repositories groups the credential stores used by the engine.
type Repositories struct {
	db            *gorm.DB
	Clients       repo.Repository[model.Client]
	Users         repo.Repository[model.User]
	Codes         repo.Repository[model.AuthorizationCode]
	AccessTokens  repo.Repository[model.AccessToken]
	RefreshTokens repo.Repository[model.RefreshToken]
	Consents      repo.Repository[model.Consent]
}

// Transaction runs fn with repositories bound to a single transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Clients:       repo.New[model.Client](db),
		Users:         repo.New[model.User](db),
		Codes:         repo.New[model.AuthorizationCode](db),
		AccessTokens:  repo.New[model.AccessToken](db),
		RefreshTokens: repo.New[model.RefreshToken](db),
		Consents:      repo.New[model.Consent](db),
	}
}
