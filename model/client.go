package model

import (
	"slices"
	"time"
)

// Client is a registered OAuth client application. Clients are never hard
// removed so tokens issued to them keep a valid reference.
type Client struct {
	ID              uint     `gorm:"primaryKey;autoIncrement"`
	Username        string   `gorm:"size:64;not null;index"` // owner
	Name            string   `gorm:"size:128;not null"`
	ClientID        string   `gorm:"size:64;not null;uniqueIndex"`
	ClientSecret    string   `gorm:"size:128;not null"`
	CredentialsFlow bool     `gorm:"not null;default:false"`
	RedirectURIs    []string `gorm:"serializer:json;not null"`
	Deleted         bool     `gorm:"not null;default:false;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// DefaultRedirectURI returns the first registered redirect uri.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}
