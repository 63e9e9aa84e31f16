package auth

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/oauth"
)

type basicStrategy struct {
	clients ClientAuthenticator
}

func (s *basicStrategy) Name() string {
	return StrategyBasic
}

// ParseBasicAuth extracts client credentials from an HTTP Basic header. Both
// parts are form-url-decoded as required by RFC 6749 section 2.3.1.
func ParseBasicAuth(header string) (clientID, clientSecret string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	id, secret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	if clientID, err = url.QueryUnescape(id); err != nil {
		return "", "", false
	}
	if clientSecret, err = url.QueryUnescape(secret); err != nil {
		return "", "", false
	}
	return clientID, clientSecret, true
}

func (s *basicStrategy) Authenticate(c *fiber.Ctx) (*Principal, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(strings.ToLower(header), "basic ") {
		return nil, ErrNoCredentials
	}
	clientID, clientSecret, ok := ParseBasicAuth(header)
	if !ok {
		return nil, oauth.NewInvalidClientError("malformed basic authorization header")
	}
	client, err := s.clients.Authenticate(c.UserContext(), clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	return &Principal{Client: client}, nil
}

func NewBasicStrategy(clients ClientAuthenticator) Strategy {
	return &basicStrategy{clients: clients}
}

type clientPasswordStrategy struct {
	clients ClientAuthenticator
}

func (s *clientPasswordStrategy) Name() string {
	return StrategyClientPassword
}

func (s *clientPasswordStrategy) Authenticate(c *fiber.Ctx) (*Principal, error) {
	clientID := c.FormValue("client_id")
	clientSecret := c.FormValue("client_secret")
	if clientID == "" || clientSecret == "" {
		return nil, ErrNoCredentials
	}
	client, err := s.clients.Authenticate(c.UserContext(), clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	return &Principal{Client: client}, nil
}

func NewClientPasswordStrategy(clients ClientAuthenticator) Strategy {
	return &clientPasswordStrategy{clients: clients}
}

type bearerStrategy struct {
	tokens TokenAuthenticator
}

func (s *bearerStrategy) Name() string {
	return StrategyBearer
}

// BearerToken returns the access token from the Authorization header, or from
// the access_token query or form parameter.
func BearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return c.FormValue("access_token")
}

func (s *bearerStrategy) Authenticate(c *fiber.Ctx) (*Principal, error) {
	token := BearerToken(c)
	if token == "" {
		return nil, ErrNoCredentials
	}
	authCtx, err := s.tokens.RequireScopes(c.UserContext(), token)
	if err != nil {
		return nil, err
	}
	return &Principal{Auth: authCtx}, nil
}

func NewBearerStrategy(tokens TokenAuthenticator) Strategy {
	return &bearerStrategy{tokens: tokens}
}
