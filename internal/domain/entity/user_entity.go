package entity

import "time"

// User is the credential record owned by the user repository.
// Token fields come in pairs: a token and its expiry are set and cleared together.
type User struct {
	ID            string
	Email         string
	PasswordHash  *string // nil for accounts created through OAuth
	Name          string
	AvatarURL     string
	Role          Role
	EmailVerified bool

	EmailVerifyToken     *string
	EmailVerifyExpires   *time.Time
	PasswordResetToken   *string
	PasswordResetExpires *time.Time

	TwoFactorEnabled bool
	TwoFactorSecret  *string
	BackupCodes      string // JSON array, see pkg/backupcode

	StripeCustomerID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the user can sign in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserDocument is the searchable projection of a user.
type UserDocument struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	AvatarURL     string `json:"avatar_url"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAt     string `json:"created_at"`
}

func (u *User) Document() UserDocument {
	return UserDocument{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		AvatarURL:     u.AvatarURL,
		Role:          u.Role.String(),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
