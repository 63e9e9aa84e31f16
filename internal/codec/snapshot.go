package codec

import (
	"strconv"

	"github.com/khanghh/koauth/model"
)

// UserSnapshot is the user data embedded in identity tokens. It only carries
// public profile fields, never credentials or linked records.
type UserSnapshot struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	FullName      string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// RedactUser builds a snapshot of user, dropping the password hash and every
// association (oauth links, consents, clients).
func RedactUser(user *model.User) *UserSnapshot {
	if user == nil {
		return nil
	}
	return &UserSnapshot{
		ID:            strconv.FormatUint(uint64(user.ID), 10),
		Username:      user.Username,
		FullName:      user.FullName,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Picture:       user.Picture,
	}
}
