package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/internal/testutil"
	"github.com/khanghh/koauth/model"
	"github.com/stretchr/testify/require"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	codes := repo.New[model.AuthorizationCode](testutil.SetupTestDB(t))

	now := time.Now()
	for i, code := range []string{"a", "b", "c"} {
		require.NoError(codes.Create(ctx, &model.AuthorizationCode{
			ClientID:  "client",
			UserID:    uint(i + 1),
			Code:      code,
			Scope:     []string{"openid"},
			Status:    model.StatusCreated,
			ExpiresAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	found, err := codes.First(ctx, repo.Eq("code", "b"))
	require.NoError(err)
	require.Equal(uint(2), found.UserID)
	require.Equal([]string{"openid"}, found.Scope)

	_, err = codes.First(ctx, repo.Eq("code", "missing"))
	require.ErrorIs(err, repo.ErrNotFound)

	list, err := codes.Find(ctx, repo.In("code", "a", "c"))
	require.NoError(err)
	require.Len(list, 2)

	count, err := codes.Count(ctx, repo.Gt("expires_at", now))
	require.NoError(err)
	require.EqualValues(2, count)
}

func TestRepositoryDuplicateKey(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	tokens := repo.New[model.AccessToken](testutil.SetupTestDB(t))

	require.NoError(tokens.Create(ctx, &model.AccessToken{Token: "dup", Type: model.TokenTypeBearer, ClientID: "c"}))
	err := tokens.Create(ctx, &model.AccessToken{Token: "dup", Type: model.TokenTypeBearer, ClientID: "c"})
	require.ErrorIs(err, repo.ErrDuplicate)
}

func TestRepositoryConditionalUpdate(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	codes := repo.New[model.AuthorizationCode](testutil.SetupTestDB(t))
	require.NoError(codes.Create(ctx, &model.AuthorizationCode{
		ClientID:  "client",
		Code:      "once",
		Status:    model.StatusCreated,
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	used := map[string]any{"status": model.StatusUsed}
	n, err := codes.Updates(ctx, used, repo.Eq("code", "once"), repo.Eq("status", model.StatusCreated))
	require.NoError(err)
	require.EqualValues(1, n)

	// the second compare-and-set loses
	_, err = codes.Updates(ctx, used, repo.Eq("code", "once"), repo.Eq("status", model.StatusCreated))
	require.ErrorIs(err, repo.ErrNotFound)

	_, err = codes.Updates(ctx, used)
	require.ErrorIs(err, repo.ErrMissingWhere)
}

func TestRepositoryDelete(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	consents := repo.New[model.Consent](testutil.SetupTestDB(t))
	require.NoError(consents.Create(ctx, &model.Consent{UserID: 1, ClientID: "x", Scopes: []string{"mail"}}))
	require.NoError(consents.Create(ctx, &model.Consent{UserID: 2, ClientID: "x", Scopes: []string{"mail"}}))

	n, err := consents.Delete(ctx, repo.Eq("user_id", 1), repo.Eq("client_id", "x"))
	require.NoError(err)
	require.EqualValues(1, n)

	n, err = consents.Delete(ctx, repo.Eq("user_id", 1))
	require.NoError(err)
	require.EqualValues(0, n)

	_, err = consents.Delete(ctx)
	require.ErrorIs(err, repo.ErrMissingWhere)
}

func TestRepositoryFindOrdered(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	events := repo.New[model.AuditEvent](testutil.SetupTestDB(t))
	for _, typ := range []string{"first", "second", "third"} {
		require.NoError(events.Create(ctx, &model.AuditEvent{UserID: 1, EventType: typ}))
	}
	require.NoError(events.Create(ctx, &model.AuditEvent{UserID: 2, EventType: "other"}))

	latest, err := events.FindOrdered(ctx, "id DESC", 2, repo.Eq("user_id", 1))
	require.NoError(err)
	require.Len(latest, 2)
	require.Equal("third", latest[0].EventType)
	require.Equal("second", latest[1].EventType)

	all, err := events.FindOrdered(ctx, "id ASC", 0, repo.Eq("user_id", 1))
	require.NoError(err)
	require.Len(all, 3)
	require.Equal("first", all[0].EventType)
}
