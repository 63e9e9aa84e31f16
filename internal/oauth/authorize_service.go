package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/internal/store"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
	"golang.org/x/sync/errgroup"
)

const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
	ResponseTypeNone    = "none"
)

// AuthorizeRequest holds the query parameters of an authorize request.
type AuthorizeRequest struct {
	ResponseType string `schema:"response_type"`
	ClientID     string `schema:"client_id"`
	Scope        string `schema:"scope,omitempty"`
	RedirectURI  string `schema:"redirect_uri,omitempty"`
	State        string `schema:"state,omitempty"`
	Nonce        string `schema:"nonce,omitempty"`
}

// Subject is the end user driving an authorize request.
type Subject struct {
	UserID        uint
	Username      string
	EmailVerified bool
}

// AuthorizeConfig holds the urls the authorize flow redirects the user agent
// to.
type AuthorizeConfig struct {
	AuthorizeURL string
	LoginURL     string
	ConsentURL   string
}

type AuthorizeService struct {
	config    AuthorizeConfig
	repos     *Repositories
	codec     *codec.Codec
	scopes    *ScopeCatalog
	consent   *ConsentGate
	flowStore store.Store[AuthorizeFlow]
	encoder   *schema.Encoder
	clock     func() time.Time
	auditor   Auditor
}

// authorizeResult accumulates the artifacts put on the client redirect.
type authorizeResult struct {
	code        *model.AuthorizationCode
	accessToken *model.AccessToken
	idToken     string
}

func withQuery(rawURL string, values url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := u.Query()
	for key, vals := range values {
		for _, val := range vals {
			query.Add(key, val)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// returnURL re-enters the authorize endpoint with the same request.
func (s *AuthorizeService) returnURL(req AuthorizeRequest) string {
	values := url.Values{}
	if err := s.encoder.Encode(req, values); err != nil {
		return s.config.AuthorizeURL
	}
	return withQuery(s.config.AuthorizeURL, values)
}

func (s *AuthorizeService) loginRedirect(req AuthorizeRequest, reason string) string {
	values := url.Values{"next": {s.returnURL(req)}}
	if reason != "" {
		values.Set("error", reason)
	}
	return withQuery(s.config.LoginURL, values)
}

// HandleAuthorize runs an authorize request and returns the url to redirect
// the user agent to. Errors are *OAuthError, redirectable ones carry the
// client redirect uri.
func (s *AuthorizeService) HandleAuthorize(ctx context.Context, req AuthorizeRequest, subject *Subject) (string, error) {
	if subject == nil {
		return s.loginRedirect(req, ""), nil
	}
	if !subject.EmailVerified {
		return s.loginRedirect(req, "unverified"), nil
	}

	client, err := s.resolveClient(ctx, req)
	if err != nil {
		return "", err
	}
	target, err := s.resolveRedirectURI(req, client)
	if err != nil {
		return "", err
	}
	responseTypes, err := s.parseResponseTypes(req, target)
	if err != nil {
		return "", err
	}
	scopes := ParseScope(req.Scope)
	if unknown := s.scopes.Unknown(scopes); len(unknown) > 0 {
		return "", NewInvalidScopeError("unknown scope " + joinWithAnd(unknown)).withRedirect(target, req.State)
	}

	decision, err := s.consent.HasConsent(ctx, subject.UserID, client.ClientID, scopes)
	if err != nil {
		slog.Error("Failed to read consent", "userID", subject.UserID, "clientID", client.ClientID, "error", err)
		return "", NewServerError("").withRedirect(target, req.State)
	}
	if !decision.Complete() {
		if !s.consent.IsTrustedRedirect(target) {
			return s.pauseForConsent(ctx, req, subject, target, decision)
		}
		if err := s.consent.RecordConsent(ctx, subject.UserID, client.ClientID, scopes); err != nil {
			slog.Error("Failed to record consent", "userID", subject.UserID, "clientID", client.ClientID, "error", err)
			return "", NewServerError("").withRedirect(target, req.State)
		}
		s.auditor.Record(ctx, AuditEvent{
			Type:     EventConsentGranted,
			UserID:   subject.UserID,
			ClientID: client.ClientID,
			Scope:    scopes,
			Reason:   "trusted redirect domain",
		})
	}

	result, err := s.produceArtifacts(ctx, req, subject, client, responseTypes, scopes)
	if err != nil {
		slog.Error("Failed to produce authorize response", "clientID", client.ClientID, "error", err)
		return "", NewServerError("").withRedirect(target, req.State)
	}
	return buildAuthorizeRedirect(target, req.State, result), nil
}

func (s *AuthorizeService) resolveClient(ctx context.Context, req AuthorizeRequest) (*model.Client, error) {
	if req.ClientID == "" {
		return nil, NewInvalidRequestError("missing client_id")
	}
	client, err := s.repos.Clients.First(ctx, repo.Eq("client_id", req.ClientID), repo.Eq("deleted", false))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, NewInvalidClientError("unknown client").withRedirect(req.RedirectURI, req.State)
	} else if err != nil {
		return nil, NewServerError("")
	}
	return client, nil
}

// resolveRedirectURI returns the presented redirect uri when registered, else
// the first registered one. An unregistered uri is never redirected to.
func (s *AuthorizeService) resolveRedirectURI(req AuthorizeRequest, client *model.Client) (string, error) {
	if req.RedirectURI != "" {
		if !client.HasRedirectURI(req.RedirectURI) {
			return "", NewInvalidRequestError("redirect_uri is not registered for this client")
		}
		return req.RedirectURI, nil
	}
	target := client.DefaultRedirectURI()
	if target == "" {
		return "", NewInvalidRequestError("client has no redirect uri")
	}
	return target, nil
}

func (s *AuthorizeService) parseResponseTypes(req AuthorizeRequest, target string) ([]string, error) {
	responseTypes := ParseScope(req.ResponseType)
	if len(responseTypes) == 0 {
		return nil, NewInvalidRequestError("missing response_type").withRedirect(target, req.State)
	}
	for _, rt := range responseTypes {
		switch rt {
		case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken:
		case ResponseTypeNone:
			if len(responseTypes) > 1 {
				return nil, NewUnsupportedResponseTypeError("none cannot be combined").withRedirect(target, req.State)
			}
		default:
			return nil, NewUnsupportedResponseTypeError("response type " + rt + " is not supported").withRedirect(target, req.State)
		}
		if rt == ResponseTypeIDToken && req.Nonce == "" {
			return nil, NewInvalidRequestError("nonce is required for id_token").withRedirect(target, req.State)
		}
	}
	return responseTypes, nil
}

func (s *AuthorizeService) pauseForConsent(ctx context.Context, req AuthorizeRequest, subject *Subject, target string, decision *ConsentDecision) (string, error) {
	flow := AuthorizeFlow{
		ID:           uuid.NewString(),
		UserID:       subject.UserID,
		ClientID:     req.ClientID,
		ResponseType: req.ResponseType,
		Scope:        req.Scope,
		Missing:      FormatScope(decision.Missing),
		RedirectURI:  req.RedirectURI,
		State:        req.State,
		Nonce:        req.Nonce,
		Target:       target,
		CreatedAt:    s.clock().UnixMilli(),
	}
	if err := s.flowStore.Set(ctx, flow.ID, flow, params.AuthorizeFlowExpiration); err != nil {
		slog.Error("Failed to save authorize flow", "clientID", req.ClientID, "error", err)
		return "", NewServerError("").withRedirect(target, req.State)
	}
	return withQuery(s.config.ConsentURL, url.Values{"flow": {flow.ID}}), nil
}

func (s *AuthorizeService) produceArtifacts(ctx context.Context, req AuthorizeRequest, subject *Subject, client *model.Client, responseTypes, scopes []string) (*authorizeResult, error) {
	var (
		result = &authorizeResult{}
		now    = s.clock()
		wants  = func(rt string) bool { return slices.Contains(responseTypes, rt) }
	)

	eg, egCtx := errgroup.WithContext(ctx)
	if wants(ResponseTypeCode) {
		eg.Go(func() error {
			code, err := createUnique(egCtx, s.repos.Codes, "code", func(token string) (*model.AuthorizationCode, error) {
				return &model.AuthorizationCode{
					ClientID:     client.ClientID,
					UserID:       subject.UserID,
					Sub:          subjectOf(subject.UserID),
					Scope:        scopes,
					Code:         token,
					RedirectURI:  req.RedirectURI,
					ResponseType: req.ResponseType,
					Nonce:        req.Nonce,
					Status:       model.StatusCreated,
					ExpiresAt:    now.Add(params.AuthorizationCodeExpiration),
				}, nil
			})
			result.code = code
			return err
		})
	}
	if wants(ResponseTypeToken) {
		eg.Go(func() error {
			accessToken, err := createUnique(egCtx, s.repos.AccessTokens, "token", func(token string) (*model.AccessToken, error) {
				return &model.AccessToken{
					Token:     token,
					Type:      model.TokenTypeBearer,
					ExpiresIn: int64(params.AccessTokenExpiration / time.Second),
					ExpiresOn: now.Add(params.AccessTokenExpiration).UnixMilli(),
					Scope:     scopes,
					UserID:    subject.UserID,
					ClientID:  client.ClientID,
				}, nil
			})
			result.accessToken = accessToken
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if wants(ResponseTypeIDToken) {
		user, err := s.repos.Users.First(ctx, repo.Eq("id", subject.UserID))
		if err != nil {
			return nil, err
		}
		var accessToken string
		if result.accessToken != nil {
			accessToken = result.accessToken.Token
		}
		result.idToken, err = buildIdentityToken(s.codec, user, client, scopes, req.Nonce, accessToken)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func buildAuthorizeRedirect(target, state string, result *authorizeResult) string {
	values := url.Values{}
	if result.code != nil {
		values.Set("code", result.code.Code)
	}
	if result.accessToken != nil {
		values.Set("access_token", result.accessToken.Token)
		values.Set("token_type", result.accessToken.Type)
		values.Set("expires_in", strconv.FormatInt(result.accessToken.ExpiresIn, 10))
	}
	if result.idToken != "" {
		values.Set("id_token", result.idToken)
	}
	if state != "" {
		values.Set("state", state)
	}
	return withQuery(target, values)
}

func (s *AuthorizeService) getFlow(ctx context.Context, flowID string, subject *Subject) (*AuthorizeFlow, error) {
	if flowID == "" || subject == nil {
		return nil, ErrFlowNotFound
	}
	flow, err := s.flowStore.Get(ctx, flowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFlowNotFound
	} else if err != nil {
		return nil, err
	}
	if flow.UserID != subject.UserID {
		return nil, ErrFlowMismatch
	}
	return &flow, nil
}

// ConsentPrompt loads a paused flow for the consent page.
func (s *AuthorizeService) ConsentPrompt(ctx context.Context, flowID string, subject *Subject) (*ConsentPrompt, error) {
	flow, err := s.getFlow(ctx, flowID, subject)
	if err != nil {
		return nil, err
	}
	client, err := s.repos.Clients.First(ctx, repo.Eq("client_id", flow.ClientID), repo.Eq("deleted", false))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClientNotFound
	} else if err != nil {
		return nil, err
	}
	missing := ParseScope(flow.Missing)
	prompt := &ConsentPrompt{Flow: flow, ClientName: client.Name}
	for _, scope := range ParseScope(flow.Scope) {
		prompt.Scopes = append(prompt.Scopes, ScopeInfo{
			Name:        scope,
			Description: s.scopes.Describe(scope),
			Granted:     !slices.Contains(missing, scope),
		})
	}
	return prompt, nil
}

// CompleteConsent resumes a paused flow with the user's decision and returns
// the next redirect. A flow can only be completed once.
func (s *AuthorizeService) CompleteConsent(ctx context.Context, flowID string, subject *Subject, approved bool) (string, error) {
	if _, err := s.getFlow(ctx, flowID, subject); err != nil {
		return "", err
	}
	flow, err := s.flowStore.Take(ctx, flowID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrFlowNotFound
	} else if err != nil {
		return "", err
	}

	scopes := ParseScope(flow.Scope)
	if !approved {
		s.auditor.Record(ctx, AuditEvent{
			Type:     EventConsentDenied,
			UserID:   subject.UserID,
			ClientID: flow.ClientID,
			Scope:    scopes,
		})
		return "", NewAccessDeniedError("the user denied the request").withRedirect(flow.Target, flow.State)
	}
	if err := s.consent.RecordConsent(ctx, subject.UserID, flow.ClientID, scopes); err != nil {
		slog.Error("Failed to record consent", "userID", subject.UserID, "clientID", flow.ClientID, "error", err)
		return "", NewServerError("").withRedirect(flow.Target, flow.State)
	}
	s.auditor.Record(ctx, AuditEvent{
		Type:     EventConsentGranted,
		UserID:   subject.UserID,
		ClientID: flow.ClientID,
		Scope:    scopes,
	})
	return s.HandleAuthorize(ctx, flow.Request(), subject)
}

func NewAuthorizeService(config AuthorizeConfig, repos *Repositories, codec *codec.Codec, scopes *ScopeCatalog, consent *ConsentGate, storage store.Storage, opts Options) *AuthorizeService {
	opts = opts.withDefaults()
	encoder := schema.NewEncoder()
	return &AuthorizeService{
		config:    config,
		repos:     repos,
		codec:     codec,
		scopes:    scopes,
		consent:   consent,
		flowStore: store.New[AuthorizeFlow](storage, params.FlowKeyPrefix),
		encoder:   encoder,
		clock:     opts.Clock,
		auditor:   opts.Auditor,
	}
}
