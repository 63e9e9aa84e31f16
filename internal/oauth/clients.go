package oauth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
)

var (
	ErrClientNameEmpty     = errors.New("client name is empty")
	ErrClientRedirectEmpty = errors.New("client has no redirect uri")
)

// ClientRegistry looks up and registers client applications.
type ClientRegistry struct {
	clients repo.Repository[model.Client]
}

func (r *ClientRegistry) GetClient(ctx context.Context, clientID string) (*model.Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}
	client, err := r.clients.First(ctx, repo.Eq("client_id", clientID), repo.Eq("deleted", false))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClientNotFound
	}
	return client, err
}

// Authenticate resolves a client by its credentials.
func (r *ClientRegistry) Authenticate(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	client, err := r.GetClient(ctx, clientID)
	if errors.Is(err, ErrClientNotFound) {
		return nil, NewInvalidClientError("client authentication failed")
	} else if err != nil {
		return nil, NewServerError("")
	}
	if subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, NewInvalidClientError("client authentication failed")
	}
	return client, nil
}

// Register creates a client with freshly generated credentials.
func (r *ClientRegistry) Register(ctx context.Context, owner, name string, redirectURIs []string, credentialsFlow bool) (*model.Client, error) {
	if name == "" {
		return nil, ErrClientNameEmpty
	}
	if len(redirectURIs) == 0 && !credentialsFlow {
		return nil, ErrClientRedirectEmpty
	}
	for attempt := 0; attempt < params.OpaqueTokenMaxAttempts; attempt++ {
		clientID, err := codec.GenerateClientID(name)
		if err != nil {
			return nil, err
		}
		secret, err := codec.GenerateClientSecret(clientID, name)
		if err != nil {
			return nil, err
		}
		client := &model.Client{
			Username:        owner,
			Name:            name,
			ClientID:        clientID,
			ClientSecret:    secret,
			CredentialsFlow: credentialsFlow,
			RedirectURIs:    redirectURIs,
		}
		err = r.clients.Create(ctx, client)
		if errors.Is(err, repo.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, ErrTokenExhausted
}

// Delete soft deletes a client, tokens issued to it stop resolving the client.
func (r *ClientRegistry) Delete(ctx context.Context, clientID string) error {
	_, err := r.clients.Updates(ctx, map[string]any{"deleted": true}, repo.Eq("client_id", clientID))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrClientNotFound
	}
	return err
}

func (r *ClientRegistry) ListByOwner(ctx context.Context, owner string) ([]*model.Client, error) {
	return r.clients.Find(ctx, repo.Eq("username", owner), repo.Eq("deleted", false))
}

func NewClientRegistry(repos *Repositories) *ClientRegistry {
	return &ClientRegistry{clients: repos.Clients}
}
