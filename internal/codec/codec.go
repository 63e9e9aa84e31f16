package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/khanghh/koauth/internal/common"
	"github.com/khanghh/koauth/params"
)

// IdentityClaims are the claims of an OpenID Connect identity token.
type IdentityClaims struct {
	Nonce             string        `json:"nonce,omitempty"`
	AtHash            string        `json:"at_hash,omitempty"`
	Email             string        `json:"email,omitempty"`
	EmailVerified     *bool         `json:"email_verified,omitempty"`
	Name              string        `json:"name,omitempty"`
	PreferredUsername string        `json:"preferred_username,omitempty"`
	Picture           string        `json:"picture,omitempty"`
	User              *UserSnapshot `json:"user,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies identity tokens for one issuer. Tokens are signed
// with a per-client secret, or with the fallback secret when none is given.
type Codec struct {
	issuer         string
	fallbackSecret string
	clock          func() time.Time
}

func (c *Codec) secretOrFallback(secret string) ([]byte, error) {
	if secret == "" {
		secret = c.fallbackSecret
	}
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return []byte(secret), nil
}

func (c *Codec) Issuer() string {
	return c.issuer
}

// CreateIdentityToken fills in issuer, issued-at and expiry, then signs the
// claims with HS256.
func (c *Codec) CreateIdentityToken(claims IdentityClaims, signingSecret string) (string, error) {
	key, err := c.secretOrFallback(signingSecret)
	if err != nil {
		return "", err
	}
	now := c.clock()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(params.IdentityTokenExpiration))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

func (c *Codec) VerifyIdentityToken(tokenStr string, signingSecret string) (*IdentityClaims, error) {
	key, err := c.secretOrFallback(signingSecret)
	if err != nil {
		return nil, err
	}
	var claims IdentityClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedMethod
		}
		return key, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithTimeFunc(c.clock))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

type stateClaims struct {
	Data map[string]string `json:"data"`
	jwt.RegisteredClaims
}

// SignState wraps data into a short lived token signed with the fallback
// secret, used to carry state through third party redirects.
func (c *Codec) SignState(data map[string]string, expiresIn time.Duration) (string, error) {
	key, err := c.secretOrFallback("")
	if err != nil {
		return "", err
	}
	now := c.clock()
	claims := stateClaims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (c *Codec) VerifyState(tokenStr string) (map[string]string, string, error) {
	key, err := c.secretOrFallback("")
	if err != nil {
		return nil, "", err
	}
	var claims stateClaims
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedMethod
		}
		return key, nil
	}, jwt.WithTimeFunc(c.clock))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims.Data, claims.ID, nil
}

// GenerateOpaqueToken returns 64 hex chars derived from 32 random bytes.
// Callers still check the store for collisions before accepting it.
func GenerateOpaqueToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// GenerateClientID derives a client id from the client name salted with
// randomness.
func GenerateClientID(name string) (string, error) {
	salt, err := common.GenerateSecret(16)
	if err != nil {
		return "", err
	}
	return common.CalculateHash(salt, name)[:32], nil
}

func GenerateClientSecret(clientID, name string) (string, error) {
	salt, err := common.GenerateSecret(params.ClientSecretLength)
	if err != nil {
		return "", err
	}
	return common.CalculateHash(salt, clientID, name), nil
}

// AccessTokenHash computes the OIDC at_hash value: the left half of the
// SHA-256 digest, base64url encoded.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func New(issuer, fallbackSecret string, clock func() time.Time) *Codec {
	if clock == nil {
		clock = time.Now
	}
	return &Codec{
		issuer:         issuer,
		fallbackSecret: fallbackSecret,
		clock:          clock,
	}
}
