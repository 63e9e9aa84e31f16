package model

import (
	"time"

	"gorm.io/gorm"
)

// User stores user information
type User struct {
	ID            uint        `gorm:"primarykey"`
	Username      string      `gorm:"uniqueIndex;size:64;not null"`
	FullName      string      `gorm:"size:128;not null"`
	Email         string      `gorm:"index;size:256;not null"`
	EmailVerified bool        `gorm:"default:false;not null"`
	Password      string      `gorm:"size:64;not null"`
	Picture       string      `gorm:"size:256;not null"`
	Disabled      bool        `gorm:"default:false;not null"`
	OAuths        []UserOAuth `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}

// UserOAuth links a user to a profile of an external identity source.
type UserOAuth struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      uint   `gorm:"index;not null"`
	Provider    string `gorm:"size:32;not null;index:idx_user_oauth_profile,unique"`
	ProfileID   string `gorm:"size:128;not null;index:idx_user_oauth_profile,unique"`
	Email       string `gorm:"size:256;not null"`
	DisplayName string `gorm:"size:128;not null"`
	Picture     string `gorm:"size:256;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
