package params

import "time"

const (
	ServerBodyLimit             = 1048576 // 1 MiB
	ServerIdleTimeout           = 30 * time.Second
	ServerReadTimeout           = 10 * time.Second
	ServerWriteTimeout          = 10 * time.Second
	SessionKeyPrefix            = "s:"
	FlowKeyPrefix               = "f:"
	LoginStateKeyPrefix         = "l:"
	AuthorizationCodeExpiration = 20 * time.Minute // unused codes are swept after this
	AccessTokenExpiration       = 1 * time.Hour    // access token lifetime, checked at use time
	RefreshTokenExpiration      = 5 * time.Hour    // refresh token lifetime, checked at use time
	IdentityTokenExpiration     = 3600 * time.Second
	AuthorizeFlowExpiration     = 10 * time.Minute // pending consent round trip
	LoginStateExpiration        = 10 * time.Minute // social login state
	CSRFTokenExpiration         = 1 * time.Hour
	OpaqueTokenMaxAttempts      = 5           // collision retries when minting opaque tokens
	SweepInterval               = time.Minute // default cleanup worker interval
	SweepBatchSize              = 500         // max orphaned codes inspected per sweep
	ClientSecretLength          = 32
	SecurityAlertQueueSize      = 64 // pending security alert mails, overflow is dropped
	AccountActivityLimit        = 10 // audit events listed on the account page
	HealthCheckServerAddr       = ":3001" // health check server address
)
