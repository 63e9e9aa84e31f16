package oauth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
)

// createUnique persists a record keyed by a fresh opaque token. The existence
// pre-check avoids most collisions, the unique index rejects the rest.
func createUnique[T any](ctx context.Context, r repo.Repository[T], column string, build func(token string) (*T, error)) (*T, error) {
	for attempt := 0; attempt < params.OpaqueTokenMaxAttempts; attempt++ {
		token, err := codec.GenerateOpaqueToken()
		if err != nil {
			return nil, err
		}
		count, err := r.Count(ctx, repo.Eq(column, token))
		if err != nil {
			return nil, err
		}
		if count > 0 {
			continue
		}
		record, err := build(token)
		if err != nil {
			return nil, err
		}
		err = r.Create(ctx, record)
		if errors.Is(err, repo.ErrDuplicate) {
			slog.Warn("Opaque token collision", "column", column, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return record, nil
	}
	return nil, ErrTokenExhausted
}

func subjectOf(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// buildIdentityToken signs an identity token for user with the client secret.
// Profile and email claims are only included when the scope allows it.
func buildIdentityToken(c *codec.Codec, user *model.User, client *model.Client, scope []string, nonce, accessToken string) (string, error) {
	snapshot := codec.RedactUser(user)
	claims := codec.IdentityClaims{
		Nonce: nonce,
		User:  snapshot,
	}
	claims.Subject = subjectOf(user.ID)
	claims.Audience = jwt.ClaimStrings{client.ClientID}
	if accessToken != "" {
		claims.AtHash = codec.AccessTokenHash(accessToken)
	}
	if slices.Contains(scope, ScopeProfile) {
		claims.Name = user.FullName
		claims.PreferredUsername = user.Username
		claims.Picture = user.Picture
	} else {
		snapshot.FullName = ""
		snapshot.Picture = ""
	}
	if slices.Contains(scope, ScopeEmail) {
		verified := user.EmailVerified
		claims.Email = user.Email
		claims.EmailVerified = &verified
	} else {
		snapshot.Email = ""
		snapshot.EmailVerified = false
	}
	return c.CreateIdentityToken(claims, client.ClientSecret)
}

// revokeLineage removes every credential derived from the authorization code
// authID. Failures are logged and do not stop the remaining deletions.
func revokeLineage(ctx context.Context, repos *Repositories, authID uint) error {
	var errs []error
	if _, err := repos.RefreshTokens.Delete(ctx, repo.Eq("auth_id", authID)); err != nil {
		errs = append(errs, err)
	}
	if _, err := repos.AccessTokens.Delete(ctx, repo.Eq("auth_id", authID)); err != nil {
		errs = append(errs, err)
	}
	if _, err := repos.Codes.Delete(ctx, repo.Eq("id", authID)); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		slog.Error("Failed to revoke credential lineage", "authID", authID, "error", err)
	}
	return err
}

// revokeUser removes every code and token issued on behalf of userID.
func revokeUser(ctx context.Context, repos *Repositories, userID uint) error {
	var errs []error
	if _, err := repos.RefreshTokens.Delete(ctx, repo.Eq("user_id", userID)); err != nil {
		errs = append(errs, err)
	}
	if _, err := repos.AccessTokens.Delete(ctx, repo.Eq("user_id", userID)); err != nil {
		errs = append(errs, err)
	}
	if _, err := repos.Codes.Delete(ctx, repo.Eq("user_id", userID)); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		slog.Error("Failed to revoke user credentials", "userID", userID, "error", err)
	}
	return err
}
