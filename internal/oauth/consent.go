package oauth

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"

	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
)

// ConsentDecision splits requested scopes into the ones the user already
// approved and the ones still needing approval.
type ConsentDecision struct {
	Granted []string
	Missing []string
}

func (d *ConsentDecision) Complete() bool {
	return len(d.Missing) == 0
}

type ConsentGate struct {
	repos          *Repositories
	trustedDomains []string
}

func (g *ConsentGate) findConsent(ctx context.Context, userID uint, clientID string) (*model.Consent, error) {
	consent, err := g.repos.Consents.First(ctx, repo.Eq("user_id", userID), repo.Eq("client_id", clientID))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return consent, err
}

func (g *ConsentGate) HasConsent(ctx context.Context, userID uint, clientID string, scopes []string) (*ConsentDecision, error) {
	consent, err := g.findConsent(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	var approved []string
	if consent != nil {
		approved = consent.Scopes
	}
	decision := &ConsentDecision{Missing: missingScopes(approved, scopes)}
	for _, scope := range scopes {
		if !slices.Contains(decision.Missing, scope) {
			decision.Granted = append(decision.Granted, scope)
		}
	}
	return decision, nil
}

// RecordConsent replaces the consent of (user, client) with scopes.
func (g *ConsentGate) RecordConsent(ctx context.Context, userID uint, clientID string, scopes []string) error {
	return g.repos.Transaction(ctx, func(tx *Repositories) error {
		if _, err := tx.Consents.Delete(ctx, repo.Eq("user_id", userID), repo.Eq("client_id", clientID)); err != nil {
			return err
		}
		return tx.Consents.Create(ctx, &model.Consent{
			UserID:   userID,
			ClientID: clientID,
			Scopes:   scopes,
		})
	})
}

func (g *ConsentGate) Revoke(ctx context.Context, userID uint, clientID string) error {
	_, err := g.repos.Consents.Delete(ctx, repo.Eq("user_id", userID), repo.Eq("client_id", clientID))
	return err
}

// IsTrustedRedirect reports whether redirectURI points to a trusted domain or
// one of its subdomains.
func (g *ConsentGate) IsTrustedRedirect(redirectURI string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range g.trustedDomains {
		domain = strings.ToLower(strings.TrimPrefix(domain, "."))
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func NewConsentGate(repos *Repositories, trustedDomains []string) *ConsentGate {
	return &ConsentGate{
		repos:          repos,
		trustedDomains: trustedDomains,
	}
}
