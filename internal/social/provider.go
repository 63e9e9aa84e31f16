// Package social implements third party login through OAuth2 providers.
package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/carlmjohnson/requests"
	"github.com/khanghh/koauth/internal/profile"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

var ErrUnsupportedProvider = errors.New("unsupported oauth provider")

// Provider is a third party identity provider.
type Provider interface {
	Name() string
	GetAuthCodeURL(state string) string
	ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error)
	GetUserInfo(ctx context.Context, token *oauth2.Token) (*profile.CanonicalUser, error)
}

// fetchProfileFunc loads the raw profile with an authenticated http client.
type fetchProfileFunc func(ctx context.Context, builder func(url string) *requests.Builder) (map[string]any, error)

type oauth2Provider struct {
	name         string
	config       *oauth2.Config
	fetchProfile fetchProfileFunc
	transformer  profile.Transformer
}

func (p *oauth2Provider) Name() string {
	return p.name
}

func (p *oauth2Provider) GetAuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *oauth2Provider) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

func (p *oauth2Provider) GetUserInfo(ctx context.Context, token *oauth2.Token) (*profile.CanonicalUser, error) {
	client := p.config.Client(ctx, token)
	builder := func(url string) *requests.Builder {
		return requests.URL(url).Client(client).Accept("application/json")
	}
	raw, err := p.fetchProfile(ctx, builder)
	if err != nil {
		return nil, fmt.Errorf("fetch %s profile: %w", p.name, err)
	}
	return p.transformer.CreateUserFromProfile(raw)
}

func fetchJSON(url string) fetchProfileFunc {
	return func(ctx context.Context, builder func(string) *requests.Builder) (map[string]any, error) {
		var raw map[string]any
		err := builder(url).ToJSON(&raw).Fetch(ctx)
		return raw, err
	}
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// fetchGithubProfile completes the /user response with the primary address
// from /user/emails, which also tells whether it is verified.
func fetchGithubProfile(ctx context.Context, builder func(string) *requests.Builder) (map[string]any, error) {
	var raw map[string]any
	if err := builder("https://api.github.com/user").ToJSON(&raw).Fetch(ctx); err != nil {
		return nil, err
	}
	var emails []githubEmail
	if err := builder("https://api.github.com/user/emails").ToJSON(&emails).Fetch(ctx); err != nil {
		return raw, nil
	}
	for _, email := range emails {
		if email.Primary {
			raw["email"] = email.Email
			raw["email_verified"] = email.Verified
			break
		}
	}
	return raw, nil
}

func newProvider(name string, endpoint oauth2.Endpoint, callbackURL, clientID, clientSecret string, scopes []string, fetch fetchProfileFunc) Provider {
	transformer, _ := profile.For(name)
	return &oauth2Provider{
		name: name,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		fetchProfile: fetch,
		transformer:  transformer,
	}
}

func NewGoogleProvider(callbackURL, clientID, clientSecret string) Provider {
	return newProvider(profile.ProviderGoogle, google.Endpoint, callbackURL, clientID, clientSecret,
		[]string{"openid", "email", "profile"},
		fetchJSON("https://openidconnect.googleapis.com/v1/userinfo"))
}

func NewGithubProvider(callbackURL, clientID, clientSecret string) Provider {
	return newProvider(profile.ProviderGithub, github.Endpoint, callbackURL, clientID, clientSecret,
		[]string{"read:user", "user:email"},
		fetchGithubProfile)
}

func NewFacebookProvider(callbackURL, clientID, clientSecret string) Provider {
	return newProvider(profile.ProviderFacebook, facebook.Endpoint, callbackURL, clientID, clientSecret,
		[]string{"email", "public_profile"},
		fetchJSON("https://graph.facebook.com/me?fields=id,name,email,picture"))
}

// NewProvider builds the provider called name.
func NewProvider(name, callbackURL, clientID, clientSecret string) (Provider, error) {
	switch name {
	case profile.ProviderGoogle:
		return NewGoogleProvider(callbackURL, clientID, clientSecret), nil
	case profile.ProviderGithub:
		return NewGithubProvider(callbackURL, clientID, clientSecret), nil
	case profile.ProviderFacebook:
		return NewFacebookProvider(callbackURL, clientID, clientSecret), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
}
