// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/khanghh/koauth/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database with every model
// migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)
	require.NoError(model.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(err)
	// keep the shared memory database alive for the whole test
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// MockUser creates a verified user.
func MockUser(t *testing.T, db *gorm.DB, username string, opts ...func(*model.User)) *model.User {
	t.Helper()
	user := &model.User{
		Username:      username,
		FullName:      username + " tester",
		Email:         username + "@example.com",
		EmailVerified: true,
		Picture:       "https://example.com/" + username + ".png",
	}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// MockClient creates a client owned by "owner".
func MockClient(t *testing.T, db *gorm.DB, clientID string, opts ...func(*model.Client)) *model.Client {
	t.Helper()
	client := &model.Client{
		Username:     "owner",
		Name:         clientID + " app",
		ClientID:     clientID,
		ClientSecret: clientID + "-secret",
		RedirectURIs: []string{"https://" + clientID + ".example.org/callback"},
	}
	for _, opt := range opts {
		opt(client)
	}
	require.NoError(t, db.Create(client).Error)
	return client
}
