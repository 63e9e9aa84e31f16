package web

const (
	MsgInvalidRequest        = "Invalid request. Please try again."
	MsgLoginSessionExpired   = "Session expired. Please log in again."
	MsgLoginWrongCredentials = "Invalid username or password."
	MsgAccountDisabled       = "Your account has been disabled."
	MsgEmailUnverified       = "Please verify your email address before signing in to applications."
	MsgLoginUnsupportedOAuth = "This OAuth provider is not supported."
	MsgOAuthLoginFailed      = "Could not sign in with this provider. Please try again."
	MsgInvalidCaptcha        = "Captcha verification failed."
	MsgConsentExpired        = "This authorization request has expired. Please start again from the application."
)

func mapLoginError(errorCode string) string {
	switch errorCode {
	case "unverified":
		return MsgEmailUnverified
	case "unsupported_provider":
		return MsgLoginUnsupportedOAuth
	case "oauth_failed":
		return MsgOAuthLoginFailed
	case "invalid_state":
		return MsgLoginSessionExpired
	case "account_disabled":
		return MsgAccountDisabled
	default:
		return ""
	}
}
