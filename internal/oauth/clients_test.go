package oauth_test

import (
	"context"
	"testing"

	"github.com/khanghh/koauth/internal/oauth"
	"github.com/stretchr/testify/require"
)

func TestClientRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registry := oauth.NewClientRegistry(f.repos)

	_, err := registry.Register(ctx, "alice", "", []string{"https://a.example.org/cb"}, false)
	require.ErrorIs(t, err, oauth.ErrClientNameEmpty)
	_, err = registry.Register(ctx, "alice", "No redirect", nil, false)
	require.ErrorIs(t, err, oauth.ErrClientRedirectEmpty)

	client, err := registry.Register(ctx, "alice", "Dashboard", []string{"https://a.example.org/cb"}, false)
	require.NoError(t, err)
	require.NotEmpty(t, client.ClientID)
	require.NotEmpty(t, client.ClientSecret)

	machine, err := registry.Register(ctx, "alice", "Cron", nil, true)
	require.NoError(t, err)
	require.True(t, machine.CredentialsFlow)

	got, err := registry.Authenticate(ctx, client.ClientID, client.ClientSecret)
	require.NoError(t, err)
	require.Equal(t, client.ID, got.ID)

	_, err = registry.Authenticate(ctx, client.ClientID, "wrong")
	requireOAuthError(t, err, oauth.ErrCodeInvalidClient)

	owned, err := registry.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, owned, 2)

	require.NoError(t, registry.Delete(ctx, client.ClientID))
	_, err = registry.GetClient(ctx, client.ClientID)
	require.ErrorIs(t, err, oauth.ErrClientNotFound)
	_, err = registry.Authenticate(ctx, client.ClientID, client.ClientSecret)
	requireOAuthError(t, err, oauth.ErrCodeInvalidClient)
}
