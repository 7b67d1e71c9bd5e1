package repository

import (
	"context"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
)

type OAuthAccountRepository interface {
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*entity.OAuthAccount, error)
	// Create links a to an existing user. Returns ErrDuplicate when the provider pair is taken.
	Create(ctx context.Context, a *entity.OAuthAccount) error
	// CreateWithUser inserts u and a in one transaction and sets a.UserID.
	// Returns ErrDuplicate when either the email or the provider pair is taken.
	CreateWithUser(ctx context.Context, u *entity.User, a *entity.OAuthAccount) error
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error
}
