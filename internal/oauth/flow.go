package oauth

// AuthorizeFlow is the continuation of an authorize request paused for user
// consent. It is stored under its own random id so concurrent flows in one
// browser session never share state.
type AuthorizeFlow struct {
	ID           string `json:"id"           redis:"id"`
	UserID       uint   `json:"userID"       redis:"user_id"`
	ClientID     string `json:"clientID"     redis:"client_id"`
	ResponseType string `json:"responseType" redis:"response_type"`
	Scope        string `json:"scope"        redis:"scope"`
	Missing      string `json:"missing"      redis:"missing"`
	RedirectURI  string `json:"redirectURI"  redis:"redirect_uri"`
	State        string `json:"state"        redis:"state"`
	Nonce        string `json:"nonce"        redis:"nonce"`
	// Target is the resolved client redirect uri.
	Target    string `json:"target"    redis:"target"`
	CreatedAt int64  `json:"createdAt" redis:"created_at"`
}

func (f *AuthorizeFlow) Request() AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType: f.ResponseType,
		ClientID:     f.ClientID,
		Scope:        f.Scope,
		RedirectURI:  f.RedirectURI,
		State:        f.State,
		Nonce:        f.Nonce,
	}
}

// ScopeInfo describes a scope on the consent page.
type ScopeInfo struct {
	Name        string
	Description string
	Granted     bool
}

// ConsentPrompt is everything the consent page shows for a flow.
type ConsentPrompt struct {
	Flow       *AuthorizeFlow
	ClientName string
	Scopes     []ScopeInfo
}
