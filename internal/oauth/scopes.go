package oauth

import (
	"slices"
	"strings"
)

const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

// DefaultScopes is the scope catalogue used when none is configured.
var DefaultScopes = map[string]string{
	"openid":         "Sign you in with your account",
	"profile":        "Read your name and picture",
	"email":          "Read your email address",
	"mail":           "Access your mailbox",
	"admin":          "Administer your account",
	"offline_access": "Keep access while you are away",
}

// ScopeCatalog holds the scope names the server knows about.
type ScopeCatalog struct {
	descriptions map[string]string
}

func NewScopeCatalog(scopes map[string]string) *ScopeCatalog {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &ScopeCatalog{descriptions: scopes}
}

func (c *ScopeCatalog) IsKnown(scope string) bool {
	_, ok := c.descriptions[scope]
	return ok
}

// Unknown returns the scopes that are not in the catalog.
func (c *ScopeCatalog) Unknown(scopes []string) []string {
	var unknown []string
	for _, s := range scopes {
		if !c.IsKnown(s) {
			unknown = append(unknown, s)
		}
	}
	return unknown
}

func (c *ScopeCatalog) Describe(scope string) string {
	if desc := c.descriptions[scope]; desc != "" {
		return desc
	}
	return scope
}

func (c *ScopeCatalog) Names() []string {
	names := make([]string, 0, len(c.descriptions))
	for name := range c.descriptions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseScope splits a space separated scope parameter, dropping duplicates.
func ParseScope(scope string) []string {
	var scopes []string
	for _, s := range strings.Fields(scope) {
		if !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func FormatScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// missingScopes returns the elements of required not present in granted.
func missingScopes(granted, required []string) []string {
	var missing []string
	for _, s := range required {
		if !slices.Contains(granted, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// joinWithAnd renders ["a", "b", "c"] as "a, b and c".
func joinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
