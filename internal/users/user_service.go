package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/khanghh/koauth/internal/common"
	"github.com/khanghh/koauth/internal/profile"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"golang.org/x/crypto/bcrypt"
)

const maxUsernameAttempts = 5

type CreateUserOptions struct {
	Username      string
	FullName      string
	Email         string
	EmailVerified bool
	Picture       string
	Password      string
	UserOAuth     *model.UserOAuth
}

type UserService struct {
	userRepo      repo.Repository[model.User]
	userOAuthRepo repo.Repository[model.UserOAuth]
}

func (s *UserService) first(ctx context.Context, conds ...repo.Cond) (*model.User, error) {
	user, err := s.userRepo.First(ctx, conds...)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	return s.first(ctx, repo.Eq("id", userID))
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, err
	}
	return s.first(ctx, repo.Eq("email", strings.ToLower(email)))
}

func (s *UserService) GetUserByUsernameOrEmail(ctx context.Context, identifier string) (*model.User, error) {
	if _, err := mail.ParseAddress(identifier); err == nil {
		return s.first(ctx, repo.Eq("email", strings.ToLower(identifier)))
	}
	return s.first(ctx, repo.Eq("username", strings.ToLower(identifier)))
}

// Authenticate checks a local username or email and password pair.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (*model.User, error) {
	user, err := s.GetUserByUsernameOrEmail(ctx, identifier)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrWrongCredentials
	} else if err != nil {
		return nil, err
	}
	if user.Password == "" {
		return nil, ErrWrongCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrWrongCredentials
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func (s *UserService) checkUserExist(ctx context.Context, email string, username string) error {
	if _, err := s.first(ctx, repo.Eq("username", username)); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if email == "" {
		return nil
	}
	if _, err := s.first(ctx, repo.Eq("email", email)); err == nil {
		return ErrEmailRegistered
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return nil
}

func (s *UserService) CreateUser(ctx context.Context, opts CreateUserOptions) (*model.User, error) {
	username := profile.SanitizeUsername(opts.Username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	email := strings.ToLower(opts.Email)
	if err := s.checkUserExist(ctx, email, username); err != nil {
		return nil, err
	}

	var passwordHash []byte
	if opts.Password != "" {
		var err error
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	}

	user := model.User{
		Username:      username,
		FullName:      opts.FullName,
		Email:         email,
		EmailVerified: opts.EmailVerified,
		Password:      string(passwordHash),
		Picture:       opts.Picture,
	}
	if opts.UserOAuth != nil {
		user.OAuths = append(user.OAuths, *opts.UserOAuth)
	}
	if err := s.userRepo.Create(ctx, &user); errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrUsernameTaken
	} else if err != nil {
		return nil, err
	}
	return &user, nil
}

// freeUsername returns base, or base with a random suffix when base is taken.
func (s *UserService) freeUsername(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "user"
	}
	candidate := base
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		count, err := s.userRepo.Count(ctx, repo.Eq("username", candidate))
		if err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		suffix, err := common.GenerateSecret(4)
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%s", base, strings.ToLower(suffix))
	}
	return "", ErrUsernameExhausted
}

// UpsertFromProfile returns the user linked to a provider profile, creating
// it on first login. A profile whose verified email matches a verified local
// account is linked to that account.
func (s *UserService) UpsertFromProfile(ctx context.Context, canonical *profile.CanonicalUser) (*model.User, error) {
	link, err := s.userOAuthRepo.First(ctx,
		repo.Eq("provider", canonical.Provider),
		repo.Eq("profile_id", canonical.ProfileID),
	)
	if err == nil {
		return s.GetUserByID(ctx, link.UserID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	userOAuth := &model.UserOAuth{
		Provider:    canonical.Provider,
		ProfileID:   canonical.ProfileID,
		Email:       canonical.Email,
		DisplayName: canonical.FullName,
		Picture:     canonical.Picture,
	}

	if canonical.Email != "" && canonical.EmailVerified {
		existing, err := s.first(ctx, repo.Eq("email", canonical.Email))
		if err == nil && existing.EmailVerified {
			userOAuth.UserID = existing.ID
			if err := s.userOAuthRepo.Create(ctx, userOAuth); err != nil {
				return nil, err
			}
			return existing, nil
		} else if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
	}

	username, err := s.freeUsername(ctx, canonical.Username)
	if err != nil {
		return nil, err
	}
	email := canonical.Email
	if email != "" {
		if count, err := s.userRepo.Count(ctx, repo.Eq("email", email)); err != nil {
			return nil, err
		} else if count > 0 {
			// unverified duplicates never take over an existing address
			email = ""
		}
	}
	return s.CreateUser(ctx, CreateUserOptions{
		Username:      username,
		FullName:      canonical.FullName,
		Email:         email,
		EmailVerified: canonical.EmailVerified && email != "",
		Picture:       canonical.Picture,
		UserOAuth:     userOAuth,
	})
}

func (s *UserService) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.userRepo.Updates(ctx, map[string]any{"password": string(passwordHash)}, repo.Eq("id", userID))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func NewUserService(userRepo repo.Repository[model.User], userOAuthRepo repo.Repository[model.UserOAuth]) *UserService {
	return &UserService{
		userRepo:      userRepo,
		userOAuthRepo: userOAuthRepo,
	}
}
