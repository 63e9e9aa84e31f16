package api

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/oauth"
)

type DiscoveryHandler struct {
	document DiscoveryDocument
}

func (h *DiscoveryHandler) GetOpenIDConfiguration(ctx *fiber.Ctx) error {
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return ctx.JSON(h.document)
}

func NewDiscoveryHandler(issuer, baseURL string, scopes *oauth.ScopeCatalog) *DiscoveryHandler {
	endpoint := func(path string) string {
		u, err := url.JoinPath(baseURL, path)
		if err != nil {
			return baseURL + path
		}
		return u
	}
	return &DiscoveryHandler{
		document: DiscoveryDocument{
			Issuer:                issuer,
			AuthorizationEndpoint: endpoint("/authorize"),
			TokenEndpoint:         endpoint("/token"),
			UserInfoEndpoint:      endpoint("/userinfo"),
			RevocationEndpoint:    endpoint("/revoke"),
			ResponseTypesSupported: []string{
				"code", "token", "id_token", "code token", "code id_token", "token id_token", "code token id_token", "none",
			},
			GrantTypesSupported:               []string{oauth.GrantTypeAuthorizationCode, oauth.GrantTypeRefreshToken, oauth.GrantTypeClientCredentials},
			ScopesSupported:                   scopes.Names(),
			SubjectTypesSupported:             []string{"public"},
			IDTokenSigningAlgValuesSupported:  []string{"HS256"},
			TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
			ClaimsSupported:                   []string{"iss", "sub", "aud", "iat", "exp", "nonce", "at_hash", "name", "preferred_username", "picture", "email", "email_verified"},
		},
	}
}
