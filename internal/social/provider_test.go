package social

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/carlmjohnson/requests"
	"github.com/khanghh/koauth/internal/profile"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 583231, "login": "octocat", "name": "The Octocat"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"email":"old@example.com","primary":false,"verified":true},{"email":"octo@example.com","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProviderLogin(t *testing.T) {
	require := require.New(t)
	srv := newTestServer(t)
	transformer, err := profile.For(profile.ProviderGithub)
	require.NoError(err)

	// same flow as github, pointed at the test server
	provider := &oauth2Provider{
		name: profile.ProviderGithub,
		config: &oauth2.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURL:  "https://auth.example.com/oauth/github/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:  srv.URL + "/authorize",
				TokenURL: srv.URL + "/token",
			},
		},
		fetchProfile: func(ctx context.Context, builder func(string) *requests.Builder) (map[string]any, error) {
			var raw map[string]any
			if err := builder(srv.URL + "/user").ToJSON(&raw).Fetch(ctx); err != nil {
				return nil, err
			}
			var emails []githubEmail
			require.NoError(builder(srv.URL + "/user/emails").ToJSON(&emails).Fetch(ctx))
			raw["email"] = emails[1].Email
			raw["email_verified"] = emails[1].Verified
			return raw, nil
		},
		transformer: transformer,
	}

	authURL, err := url.Parse(provider.GetAuthCodeURL("st"))
	require.NoError(err)
	require.Equal("st", authURL.Query().Get("state"))
	require.Equal("id", authURL.Query().Get("client_id"))

	ctx := context.Background()
	token, err := provider.ExchangeToken(ctx, "the-code")
	require.NoError(err)
	user, err := provider.GetUserInfo(ctx, token)
	require.NoError(err)
	require.Equal("583231", user.ProfileID)
	require.Equal("octocat", user.Username)
	require.Equal("octo@example.com", user.Email)
	require.True(user.EmailVerified)
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"google", "github", "facebook"} {
		p, err := NewProvider(name, "https://auth.example.com/cb", "id", "secret")
		require.NoError(t, err)
		require.Equal(t, name, p.Name())
		require.Contains(t, p.GetAuthCodeURL("x"), "client_id=id")
	}
	_, err := NewProvider("myspace", "", "", "")
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}
