// Package profile maps identity provider profiles onto the canonical user
// record.
package profile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	ProviderLocal     = "local"
	ProviderGoogle    = "google"
	ProviderGithub    = "github"
	ProviderFacebook  = "facebook"
	ProviderIP        = "ip"
	ProviderFederated = "federated"
)

var (
	ErrMissingProfileID = errors.New("profile has no id")
	ErrUnknownProvider  = errors.New("unknown profile provider")
)

// CanonicalUser is a provider profile in the shape of a local user.
type CanonicalUser struct {
	Provider      string
	ProfileID     string
	Username      string
	FullName      string
	Email         string
	EmailVerified bool
	Picture       string
}

// Transformer converts one provider's raw profile.
type Transformer interface {
	CreateUserFromProfile(raw map[string]any) (*CanonicalUser, error)
}

type TransformFunc func(raw map[string]any) (*CanonicalUser, error)

func (f TransformFunc) CreateUserFromProfile(raw map[string]any) (*CanonicalUser, error) {
	return f(raw)
}

var transformers = map[string]Transformer{
	ProviderLocal:     TransformFunc(fromLocal),
	ProviderGoogle:    TransformFunc(fromGoogle),
	ProviderGithub:    TransformFunc(fromGithub),
	ProviderFacebook:  TransformFunc(fromFacebook),
	ProviderIP:        TransformFunc(fromIP),
	ProviderFederated: TransformFunc(fromFederated),
}

// For returns the transformer of provider.
func For(provider string) (Transformer, error) {
	t, ok := transformers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return t, nil
}

// CreateUserFromProfile transforms raw with the transformer of provider.
func CreateUserFromProfile(provider string, raw map[string]any) (*CanonicalUser, error) {
	t, err := For(provider)
	if err != nil {
		return nil, err
	}
	return t.CreateUserFromProfile(raw)
}

var usernameInvalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeUsername lowercases s and strips characters not allowed in
// usernames.
func SanitizeUsername(s string) string {
	s = usernameInvalidChars.ReplaceAllString(strings.ToLower(s), "")
	return strings.Trim(s, ".-_")
}

// usernameFromEmail returns the local part of email.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return SanitizeUsername(local)
}
