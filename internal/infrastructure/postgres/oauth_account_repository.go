package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/domain/repository"
)

type OAuthAccountRepository struct {
	db DBTX
}

func NewOAuthAccountRepository(db DBTX) *OAuthAccountRepository {
	return &OAuthAccountRepository{db: db}
}

func (r *OAuthAccountRepository) GetByProvider(ctx context.Context, provider, providerAccountID string) (*entity.OAuthAccount, error) {
	a := &entity.OAuthAccount{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, provider, provider_account_id, access_token, refresh_token, created_at, updated_at
		FROM oauth_accounts
		WHERE provider = $1 AND provider_account_id = $2
	`, provider, providerAccountID).Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID,
		&a.AccessToken, &a.RefreshToken, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func insertAccount(ctx context.Context, q queryRower, a *entity.OAuthAccount) error {
	row := q.QueryRow(ctx, `
		INSERT INTO oauth_accounts (user_id, provider, provider_account_id, access_token, refresh_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, a.UserID, a.Provider, a.ProviderAccountID, a.AccessToken, a.RefreshToken)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *OAuthAccountRepository) Create(ctx context.Context, a *entity.OAuthAccount) error {
	return insertAccount(ctx, r.db, a)
}

func (r *OAuthAccountRepository) CreateWithUser(ctx context.Context, u *entity.User, a *entity.OAuthAccount) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := insertUser(ctx, tx, u); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	a.UserID = u.ID
	if err := insertAccount(ctx, tx, a); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *OAuthAccountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE oauth_accounts
		SET access_token = $2, refresh_token = COALESCE(NULLIF($3, ''), refresh_token), updated_at = now()
		WHERE id = $1
	`, id, accessToken, refreshToken)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.OAuthAccountRepository = (*OAuthAccountRepository)(nil)
