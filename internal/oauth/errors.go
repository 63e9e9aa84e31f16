package oauth

import (
	"errors"
	"net/http"
	"net/url"
)

const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeServerError             = "server_error"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrFlowNotFound   = errors.New("authorize flow not found")
	ErrFlowMismatch   = errors.New("authorize flow belongs to another user")
	ErrTokenExhausted = errors.New("could not generate a unique token")
)

// OAuthError is an error response as defined in RFC 6749 section 5.2.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	// RedirectURI is where an authorize error must be delivered, empty when
	// there is no safe redirect target.
	RedirectURI string `json:"-"`
	State       string `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// StatusCode returns the HTTP status used by the token endpoint.
func (e *OAuthError) StatusCode() int {
	switch e.Code {
	case ErrCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func NewOAuthError(code, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}

func NewInvalidRequestError(description string) *OAuthError {
	return NewOAuthError(ErrCodeInvalidRequest, description)
}

func NewInvalidClientError(description string) *OAuthError {
	return NewOAuthError(ErrCodeInvalidClient, description)
}

func NewUnauthorizedClientError(description string) *OAuthError {
	return NewOAuthError(ErrCodeUnauthorizedClient, description)
}

func NewInvalidGrantError(description string) *OAuthError {
	return NewOAuthError(ErrCodeInvalidGrant, description)
}

func NewInvalidScopeError(description string) *OAuthError {
	return NewOAuthError(ErrCodeInvalidScope, description)
}

func NewUnsupportedResponseTypeError(description string) *OAuthError {
	return NewOAuthError(ErrCodeUnsupportedResponseType, description)
}

func NewUnsupportedGrantTypeError(description string) *OAuthError {
	return NewOAuthError(ErrCodeUnsupportedGrantType, description)
}

func NewAccessDeniedError(description string) *OAuthError {
	return NewOAuthError(ErrCodeAccessDenied, description)
}

func NewServerError(description string) *OAuthError {
	return NewOAuthError(ErrCodeServerError, description)
}

// AsOAuthError converts err into an OAuthError, unknown errors become
// server_error.
func AsOAuthError(err error) *OAuthError {
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return NewServerError("")
}

// RedirectLocation returns the error encoded onto the client redirect uri, ok
// is false when the error must be rendered instead.
func (e *OAuthError) RedirectLocation() (string, bool) {
	if e.RedirectURI == "" {
		return "", false
	}
	u, err := url.Parse(e.RedirectURI)
	if err != nil {
		return "", false
	}
	query := u.Query()
	query.Set("error", e.Code)
	if e.Description != "" {
		query.Set("error_description", e.Description)
	}
	if e.State != "" {
		query.Set("state", e.State)
	}
	u.RawQuery = query.Encode()
	return u.String(), true
}

func (e *OAuthError) withRedirect(redirectURI, state string) *OAuthError {
	e.RedirectURI = redirectURI
	e.State = state
	return e
}
