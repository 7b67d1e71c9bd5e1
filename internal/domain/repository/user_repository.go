package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict means a conditional update matched no row because the record changed.
	ErrConflict = errors.New("conflict")
)

type UserRepository interface {
	// Create inserts u and fills ID and timestamps. Returns ErrDuplicate when the email exists.
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	List(ctx context.Context, limit, offset int) ([]entity.User, int, error)
	// UpdateProfile writes email, name, avatar, email_verified and the verification token pair.
	UpdateProfile(ctx context.Context, u *entity.User) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id string, role entity.Role) error

	SetEmailVerifyToken(ctx context.Context, id, token string, expires time.Time) error
	SetPasswordResetToken(ctx context.Context, id, token string, expires time.Time) error
	// ConsumeEmailVerifyToken marks the owner verified and clears the pair in one statement,
	// only when the token exists and expires after now. Returns ErrNotFound otherwise.
	ConsumeEmailVerifyToken(ctx context.Context, token string, now time.Time) (string, error)
	// ConsumePasswordResetToken sets the new hash and clears the pair under the same predicate.
	ConsumePasswordResetToken(ctx context.Context, token, newHash string, now time.Time) (string, error)

	// SetTwoFactorSecret stores a pending secret for a user that has 2FA disabled.
	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	// EnableTwoFactor flips the flag and replaces backup codes when a secret is pending.
	EnableTwoFactor(ctx context.Context, id, backupCodes string) error
	DisableTwoFactor(ctx context.Context, id string) error
	// ReplaceBackupCodes swaps the stored set only if it still equals previous. Returns ErrConflict otherwise.
	ReplaceBackupCodes(ctx context.Context, id, previous, next string) error
}
