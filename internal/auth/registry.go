package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/model"
)

const (
	StrategyBasic          = "basic"
	StrategyClientPassword = "client-password"
	StrategyBearer         = "bearer"
)

// Principal is the party a strategy authenticated. Client strategies set
// Client, the bearer strategy sets Auth.
type Principal struct {
	Strategy string
	Client   *model.Client
	Auth     *oauth.AuthContext
}

// Strategy authenticates one kind of credential. Authenticate returns
// ErrNoCredentials when the request does not carry that kind.
type Strategy interface {
	Name() string
	Authenticate(c *fiber.Ctx) (*Principal, error)
}

type ClientAuthenticator interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) (*model.Client, error)
}

type TokenAuthenticator interface {
	RequireScopes(ctx context.Context, bearer string, scopes ...string) (*oauth.AuthContext, error)
}

// Registry holds the strategies available to handlers. It is built once at
// startup and passed to the handlers that need it.
type Registry struct {
	strategies map[string]Strategy
}

func (r *Registry) Use(strategy Strategy) *Registry {
	r.strategies[strategy.Name()] = strategy
	return r
}

func (r *Registry) Get(name string) (Strategy, bool) {
	strategy, ok := r.strategies[name]
	return strategy, ok
}

// Authenticate tries the named strategies in order. The first strategy that
// finds credentials decides the outcome.
func (r *Registry) Authenticate(c *fiber.Ctx, names ...string) (*Principal, error) {
	for _, name := range names {
		strategy, ok := r.strategies[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
		}
		principal, err := strategy.Authenticate(c)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		if err != nil {
			return nil, err
		}
		principal.Strategy = name
		return principal, nil
	}
	return nil, ErrNoCredentials
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, strategy := range strategies {
		r.Use(strategy)
	}
	return r
}

// NewDefaultRegistry registers the basic, client-password and bearer
// strategies.
func NewDefaultRegistry(clients ClientAuthenticator, tokens TokenAuthenticator) *Registry {
	return NewRegistry(
		NewBasicStrategy(clients),
		NewClientPasswordStrategy(clients),
		NewBearerStrategy(tokens),
	)
}
