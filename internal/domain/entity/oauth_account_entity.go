package entity

import "time"

// OAuthAccount links an external identity to a local user.
// (Provider, ProviderAccountID) is unique across all users.
type OAuthAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
