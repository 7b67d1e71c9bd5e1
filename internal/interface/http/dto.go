package handlers

import (
	"time"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
)

// userResponse is the public view of a user. Hashes, tokens, secrets and backup codes never leave the service.
type userResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	AvatarURL        string    `json:"avatar_url"`
	Role             string    `json:"role"`
	EmailVerified    bool      `json:"email_verified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	HasPassword      bool      `json:"has_password"`
	CreatedAt        time.Time `json:"created_at"`
}

func toUserResponse(u *entity.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		AvatarURL:        u.AvatarURL,
		Role:             u.Role.String(),
		EmailVerified:    u.EmailVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		HasPassword:      u.HasPassword(),
		CreatedAt:        u.CreatedAt,
	}
}

type sessionResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
	Name     string `json:"name" binding:"omitempty,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginTwoFactorRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	Code       string `json:"code" binding:"omitempty,totp"`
	BackupCode string `json:"backup_code" binding:"omitempty,backupcode"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,pwd"`
}

type updateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,url"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,pwd"`
}

type codeRequest struct {
	Code string `json:"code" binding:"required,totp"`
}

type disableTwoFactorRequest struct {
	Password   string `json:"password"`
	Code       string `json:"code" binding:"omitempty,totp"`
	BackupCode string `json:"backup_code" binding:"omitempty,backupcode"`
}

type updateRoleRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Role   string `json:"role" binding:"required,oneof=customer moderator admin"`
}
