package oauth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
)

// TokenRequest holds the form parameters of a token endpoint request.
type TokenRequest struct {
	GrantType    string `schema:"grant_type"`
	Code         string `schema:"code"`
	RedirectURI  string `schema:"redirect_uri"`
	RefreshToken string `schema:"refresh_token"`
	Scope        string `schema:"scope"`
	ClientID     string `schema:"client_id"`
	ClientSecret string `schema:"client_secret"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// tokenContext is threaded through the stages of a token request.
type tokenContext struct {
	req    TokenRequest
	client *model.Client
	now    time.Time

	auth    *model.AuthorizationCode // credential lineage, nil for client_credentials
	refresh *model.RefreshToken      // presented refresh token
	scope   []string                 // scope of the issued access token
	granted []string                 // scope carried by the new refresh token
	user    *model.User

	issueRefresh bool
	resp         *TokenResponse
}

type tokenStage func(ctx context.Context, tc *tokenContext) error

type TokenService struct {
	repos   *Repositories
	codec   *codec.Codec
	clock   func() time.Time
	auditor Auditor
}

// HandleTokenRequest runs a token request for the authenticated client. Every
// failure is returned as an *OAuthError.
func (s *TokenService) HandleTokenRequest(ctx context.Context, req TokenRequest, client *model.Client) (*TokenResponse, error) {
	tc := &tokenContext{
		req:    req,
		client: client,
		now:    s.clock(),
	}
	stages := []tokenStage{
		s.authenticateClient,
		s.dispatchGrant,
		s.checkOwnership,
		s.resolveUser,
		s.consume,
		s.mint,
	}
	for _, stage := range stages {
		if err := stage(ctx, tc); err != nil {
			return nil, err
		}
	}
	return tc.resp, nil
}

func (s *TokenService) authenticateClient(ctx context.Context, tc *tokenContext) error {
	if tc.client == nil || tc.client.Deleted {
		return NewInvalidClientError("client authentication failed")
	}
	return nil
}

func (s *TokenService) dispatchGrant(ctx context.Context, tc *tokenContext) error {
	switch tc.req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.resolveAuthorizationCode(ctx, tc)
	case GrantTypeRefreshToken:
		return s.resolveRefreshToken(ctx, tc)
	case GrantTypeClientCredentials:
		return s.resolveClientCredentials(ctx, tc)
	case "":
		return NewInvalidRequestError("missing grant_type")
	default:
		return NewUnsupportedGrantTypeError("grant type " + tc.req.GrantType + " is not supported")
	}
}

func (s *TokenService) resolveAuthorizationCode(ctx context.Context, tc *tokenContext) error {
	if tc.req.Code == "" {
		return NewInvalidRequestError("missing code")
	}
	code, err := s.repos.Codes.First(ctx, repo.Eq("code", tc.req.Code))
	if errors.Is(err, repo.ErrNotFound) {
		return NewInvalidGrantError("invalid authorization code")
	} else if err != nil {
		return NewServerError("")
	}
	if code.Status != model.StatusCreated {
		s.handleReplay(ctx, EventCodeReplay, tc, code.ID, code.UserID)
		return NewInvalidGrantError("authorization code already used")
	}
	if code.IsExpired(tc.now) {
		return NewInvalidGrantError("authorization code expired")
	}
	if !slices.Contains(strings.Fields(code.ResponseType), ResponseTypeCode) {
		return NewUnauthorizedClientError("authorization was not issued for the code flow")
	}
	if (code.RedirectURI != "" || tc.req.RedirectURI != "") && code.RedirectURI != tc.req.RedirectURI {
		return NewInvalidGrantError("redirect_uri does not match the authorization request")
	}
	tc.auth = code
	tc.scope = code.Scope
	tc.granted = code.Scope
	tc.issueRefresh = true
	return nil
}

func (s *TokenService) resolveRefreshToken(ctx context.Context, tc *tokenContext) error {
	if tc.req.RefreshToken == "" {
		return NewInvalidRequestError("missing refresh_token")
	}
	refresh, err := s.repos.RefreshTokens.First(ctx, repo.Eq("token", tc.req.RefreshToken))
	if errors.Is(err, repo.ErrNotFound) {
		return NewInvalidGrantError("invalid refresh token")
	} else if err != nil {
		return NewServerError("")
	}
	if refresh.Status != model.StatusCreated {
		s.handleReplay(ctx, EventRefreshReplay, tc, refresh.AuthID, refresh.UserID)
		return NewInvalidGrantError("refresh token already used")
	}
	if refresh.IsExpired(tc.now) {
		return NewInvalidGrantError("refresh token expired")
	}
	code, err := s.repos.Codes.First(ctx, repo.Eq("id", refresh.AuthID))
	if errors.Is(err, repo.ErrNotFound) {
		return NewInvalidGrantError("authorization is no longer valid")
	} else if err != nil {
		return NewServerError("")
	}

	tc.scope = refresh.Scope
	if requested := ParseScope(tc.req.Scope); len(requested) > 0 {
		if missing := missingScopes(refresh.Scope, requested); len(missing) > 0 {
			return NewInvalidScopeError("scope " + joinWithAnd(missing) + " was not granted")
		}
		tc.scope = requested
	}
	tc.auth = code
	tc.refresh = refresh
	tc.granted = refresh.Scope
	tc.issueRefresh = true
	return nil
}

func (s *TokenService) resolveClientCredentials(ctx context.Context, tc *tokenContext) error {
	if !tc.client.CredentialsFlow {
		return NewUnauthorizedClientError("client is not allowed to use the client_credentials grant")
	}
	tc.scope = ParseScope(tc.req.Scope)
	return nil
}

func (s *TokenService) checkOwnership(ctx context.Context, tc *tokenContext) error {
	if tc.auth == nil {
		return nil
	}
	if tc.auth.ClientID != tc.client.ClientID {
		return NewInvalidGrantError("code was not issued for this client")
	}
	if tc.refresh != nil && tc.refresh.ClientID != tc.client.ClientID {
		return NewInvalidGrantError("refresh token was not issued for this client")
	}
	return nil
}

// consume flips the presented code or refresh token from created to used. The
// conditional update lets exactly one concurrent exchange win, the losers are
// treated as replays.
func (s *TokenService) consume(ctx context.Context, tc *tokenContext) error {
	used := map[string]any{"status": model.StatusUsed}
	switch {
	case tc.refresh != nil:
		_, err := s.repos.RefreshTokens.Updates(ctx, used, repo.Eq("id", tc.refresh.ID), repo.Eq("status", model.StatusCreated))
		if errors.Is(err, repo.ErrNotFound) {
			s.handleReplay(ctx, EventRefreshReplay, tc, tc.refresh.AuthID, tc.refresh.UserID)
			return NewInvalidGrantError("refresh token already used")
		} else if err != nil {
			return NewServerError("")
		}
	case tc.auth != nil:
		_, err := s.repos.Codes.Updates(ctx, used, repo.Eq("id", tc.auth.ID), repo.Eq("status", model.StatusCreated))
		if errors.Is(err, repo.ErrNotFound) {
			s.handleReplay(ctx, EventCodeReplay, tc, tc.auth.ID, tc.auth.UserID)
			return NewInvalidGrantError("authorization code already used")
		} else if err != nil {
			return NewServerError("")
		}
	}
	return nil
}

func (s *TokenService) resolveUser(ctx context.Context, tc *tokenContext) error {
	if tc.auth == nil {
		return nil
	}
	user, err := s.repos.Users.First(ctx, repo.Eq("id", tc.auth.UserID))
	if errors.Is(err, repo.ErrNotFound) {
		return NewInvalidGrantError("user no longer exists")
	} else if err != nil {
		return NewServerError("")
	}
	if user.Disabled {
		return NewInvalidGrantError("user is disabled")
	}
	tc.user = user
	return nil
}

func (s *TokenService) mint(ctx context.Context, tc *tokenContext) error {
	expiresIn := int64(params.AccessTokenExpiration / time.Second)
	accessToken, err := createUnique(ctx, s.repos.AccessTokens, "token", func(token string) (*model.AccessToken, error) {
		at := &model.AccessToken{
			Token:     token,
			Type:      model.TokenTypeBearer,
			ExpiresIn: expiresIn,
			ExpiresOn: tc.now.Add(params.AccessTokenExpiration).UnixMilli(),
			Scope:     tc.scope,
			ClientID:  tc.client.ClientID,
		}
		if tc.auth != nil {
			at.AuthID = &tc.auth.ID
		}
		if tc.user != nil {
			at.UserID = tc.user.ID
			idToken, err := buildIdentityToken(s.codec, tc.user, tc.client, tc.scope, tc.auth.Nonce, token)
			if err != nil {
				return nil, err
			}
			at.IDToken = idToken
		}
		return at, nil
	})
	if err != nil {
		slog.Error("Failed to issue access token", "clientID", tc.client.ClientID, "error", err)
		return NewServerError("")
	}

	tc.resp = &TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   accessToken.Type,
		ExpiresIn:   accessToken.ExpiresIn,
		IDToken:     accessToken.IDToken,
		Scope:       FormatScope(accessToken.Scope),
	}

	if tc.issueRefresh {
		refreshToken, err := createUnique(ctx, s.repos.RefreshTokens, "token", func(token string) (*model.RefreshToken, error) {
			return &model.RefreshToken{
				Token:     token,
				Status:    model.StatusCreated,
				AuthID:    tc.auth.ID,
				Scope:     tc.granted,
				UserID:    tc.auth.UserID,
				ClientID:  tc.client.ClientID,
				ExpiresAt: tc.now.Add(params.RefreshTokenExpiration),
			}, nil
		})
		if err != nil {
			slog.Error("Failed to issue refresh token", "clientID", tc.client.ClientID, "error", err)
			return NewServerError("")
		}
		tc.resp.RefreshToken = refreshToken.Token
	}

	event := AuditEvent{
		Type:      EventTokenIssued,
		ClientID:  tc.client.ClientID,
		GrantType: tc.req.GrantType,
		Scope:     tc.scope,
	}
	if tc.user != nil {
		event.UserID = tc.user.ID
	}
	s.auditor.Record(ctx, event)
	return nil
}

// handleReplay revokes the lineage of a credential presented twice. It runs
// even though the request itself fails.
func (s *TokenService) handleReplay(ctx context.Context, eventType string, tc *tokenContext, authID, userID uint) {
	slog.Warn("Credential replay detected", "event", eventType, "clientID", tc.client.ClientID, "authID", authID)
	revokeLineage(ctx, s.repos, authID)
	s.auditor.Record(ctx, AuditEvent{
		Type:      eventType,
		UserID:    userID,
		ClientID:  tc.client.ClientID,
		GrantType: tc.req.GrantType,
		Reason:    "credential presented more than once",
	})
}

// RevokeToken revokes an access or refresh token owned by client. Unknown
// tokens are ignored. Revoking a refresh token revokes its whole lineage.
func (s *TokenService) RevokeToken(ctx context.Context, client *model.Client, token string) error {
	if token == "" {
		return NewInvalidRequestError("missing token")
	}
	deleted, err := s.repos.AccessTokens.Delete(ctx, repo.Eq("token", token), repo.Eq("client_id", client.ClientID))
	if err != nil {
		return NewServerError("")
	}
	if deleted > 0 {
		s.auditor.Record(ctx, AuditEvent{Type: EventTokenRevoked, ClientID: client.ClientID, Reason: "access_token"})
		return nil
	}
	refresh, err := s.repos.RefreshTokens.First(ctx, repo.Eq("token", token), repo.Eq("client_id", client.ClientID))
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	} else if err != nil {
		return NewServerError("")
	}
	revokeLineage(ctx, s.repos, refresh.AuthID)
	s.auditor.Record(ctx, AuditEvent{
		Type:     EventTokenRevoked,
		UserID:   refresh.UserID,
		ClientID: client.ClientID,
		Reason:   "refresh_token",
	})
	return nil
}

func NewTokenService(repos *Repositories, codec *codec.Codec, opts Options) *TokenService {
	opts = opts.withDefaults()
	return &TokenService{
		repos:   repos,
		codec:   codec,
		clock:   opts.Clock,
		auditor: opts.Auditor,
	}
}
