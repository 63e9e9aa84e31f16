package profile

import (
	"strings"

	"github.com/spf13/cast"
)

func requireID(id string) error {
	if id == "" {
		return ErrMissingProfileID
	}
	return nil
}

func fromLocal(raw map[string]any) (*CanonicalUser, error) {
	username := SanitizeUsername(cast.ToString(raw["username"]))
	if err := requireID(username); err != nil {
		return nil, err
	}
	return &CanonicalUser{
		Provider:      ProviderLocal,
		ProfileID:     username,
		Username:      username,
		FullName:      cast.ToString(raw["name"]),
		Email:         strings.ToLower(cast.ToString(raw["email"])),
		EmailVerified: cast.ToBool(raw["email_verified"]),
		Picture:       cast.ToString(raw["picture"]),
	}, nil
}

// fromGoogle maps the OpenID userinfo of Google accounts.
func fromGoogle(raw map[string]any) (*CanonicalUser, error) {
	id := cast.ToString(raw["sub"])
	if id == "" {
		id = cast.ToString(raw["id"])
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	email := strings.ToLower(cast.ToString(raw["email"]))
	verified := cast.ToBool(raw["email_verified"])
	if _, ok := raw["verified_email"]; ok {
		verified = cast.ToBool(raw["verified_email"])
	}
	return &CanonicalUser{
		Provider:      ProviderGoogle,
		ProfileID:     id,
		Username:      usernameFromEmail(email),
		FullName:      cast.ToString(raw["name"]),
		Email:         email,
		EmailVerified: verified,
		Picture:       cast.ToString(raw["picture"]),
	}, nil
}

// fromGithub maps the /user api response. Github ids are numbers.
func fromGithub(raw map[string]any) (*CanonicalUser, error) {
	id := cast.ToString(cast.ToInt64(raw["id"]))
	if id == "0" {
		return nil, ErrMissingProfileID
	}
	login := SanitizeUsername(cast.ToString(raw["login"]))
	name := cast.ToString(raw["name"])
	if name == "" {
		name = login
	}
	return &CanonicalUser{
		Provider:      ProviderGithub,
		ProfileID:     id,
		Username:      login,
		FullName:      name,
		Email:         strings.ToLower(cast.ToString(raw["email"])),
		EmailVerified: cast.ToBool(raw["email_verified"]),
		Picture:       cast.ToString(raw["avatar_url"]),
	}, nil
}

// fromFacebook maps the graph api /me response, the picture is nested under
// picture.data.url.
func fromFacebook(raw map[string]any) (*CanonicalUser, error) {
	id := cast.ToString(raw["id"])
	if err := requireID(id); err != nil {
		return nil, err
	}
	picture := cast.ToStringMap(cast.ToStringMap(raw["picture"])["data"])
	email := strings.ToLower(cast.ToString(raw["email"]))
	username := usernameFromEmail(email)
	if username == "" {
		username = "fb-" + id
	}
	return &CanonicalUser{
		Provider:  ProviderFacebook,
		ProfileID: id,
		Username:  username,
		FullName:  cast.ToString(raw["name"]),
		Email:     email,
		// facebook only returns confirmed addresses
		EmailVerified: email != "",
		Picture:       cast.ToString(picture["url"]),
	}, nil
}

// fromIP builds an anonymous user bound to a client address.
func fromIP(raw map[string]any) (*CanonicalUser, error) {
	ip := cast.ToString(raw["ip"])
	if err := requireID(ip); err != nil {
		return nil, err
	}
	slug := strings.NewReplacer(".", "-", ":", "-").Replace(ip)
	return &CanonicalUser{
		Provider:  ProviderIP,
		ProfileID: ip,
		Username:  "ip-" + SanitizeUsername(slug),
		FullName:  ip,
	}, nil
}

// fromFederated maps the identity token claims of another OpenID provider.
// The profile id is scoped by issuer so subjects of different issuers never
// collide.
func fromFederated(raw map[string]any) (*CanonicalUser, error) {
	sub := cast.ToString(raw["sub"])
	if err := requireID(sub); err != nil {
		return nil, err
	}
	issuer := cast.ToString(raw["iss"])
	username := SanitizeUsername(cast.ToString(raw["preferred_username"]))
	email := strings.ToLower(cast.ToString(raw["email"]))
	if username == "" {
		username = usernameFromEmail(email)
	}
	profileID := sub
	if issuer != "" {
		profileID = issuer + "|" + sub
	}
	return &CanonicalUser{
		Provider:      ProviderFederated,
		ProfileID:     profileID,
		Username:      username,
		FullName:      cast.ToString(raw["name"]),
		Email:         email,
		EmailVerified: cast.ToBool(raw["email_verified"]),
		Picture:       cast.ToString(raw["picture"]),
	}, nil
}
