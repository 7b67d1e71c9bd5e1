package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/domain/repository"
)

const userColumns = `id, email, password_hash, name, avatar_url, role, email_verified,
	email_verify_token, email_verify_expires, password_reset_token, password_reset_expires,
	two_factor_enabled, two_factor_secret, backup_codes, stripe_customer_id, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row, extra ...any) (*entity.User, error) {
	u := &entity.User{}
	var role string
	dest := []any{
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.AvatarURL, &role, &u.EmailVerified,
		&u.EmailVerifyToken, &u.EmailVerifyExpires, &u.PasswordResetToken, &u.PasswordResetExpires,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &u.BackupCodes, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	r, err := entity.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = r
	return u, nil
}

func insertUser(ctx context.Context, q queryRower, u *entity.User) error {
	if u.BackupCodes == "" {
		u.BackupCodes = "[]"
	}
	row := q.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, avatar_url, role, email_verified, email_verify_token, email_verify_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, u.Email, u.PasswordHash, u.Name, u.AvatarURL, u.Role.String(), u.EmailVerified, u.EmailVerifyToken, u.EmailVerifyExpires)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	return insertUser(ctx, r.db, u)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// List returns one page ordered by newest first plus the total row count.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]entity.User, int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`, count(*) OVER ()
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		users []entity.User
		total int
	)
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, u *entity.User) error {
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET email = $1, name = $2, avatar_url = $3, email_verified = $4,
		    email_verify_token = $5, email_verify_expires = $6, updated_at = now()
		WHERE id = $7
		RETURNING updated_at
	`, u.Email, u.Name, u.AvatarURL, u.EmailVerified, u.EmailVerifyToken, u.EmailVerifyExpires, u.ID).Scan(&u.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return repository.ErrNotFound
	case isUniqueViolation(err):
		return repository.ErrDuplicate
	}
	return err
}

func (r *UserRepository) exec(ctx context.Context, none error, sql string, args ...any) error {
	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return none
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, repository.ErrNotFound,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role entity.Role) error {
	if !role.Valid() {
		return entity.ErrUnknownRole
	}
	return r.exec(ctx, repository.ErrNotFound,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role.String())
}

func (r *UserRepository) SetEmailVerifyToken(ctx context.Context, id, token string, expires time.Time) error {
	return r.exec(ctx, repository.ErrNotFound,
		`UPDATE users SET email_verify_token = $2, email_verify_expires = $3, updated_at = now() WHERE id = $1`,
		id, token, expires)
}

func (r *UserRepository) SetPasswordResetToken(ctx context.Context, id, token string, expires time.Time) error {
	return r.exec(ctx, repository.ErrNotFound,
		`UPDATE users SET password_reset_token = $2, password_reset_expires = $3, updated_at = now() WHERE id = $1`,
		id, token, expires)
}

func (r *UserRepository) ConsumeEmailVerifyToken(ctx context.Context, token string, now time.Time) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET email_verified = TRUE, email_verify_token = NULL, email_verify_expires = NULL, updated_at = now()
		WHERE email_verify_token = $1 AND email_verify_expires > $2
		RETURNING id
	`, token, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	return id, err
}

func (r *UserRepository) ConsumePasswordResetToken(ctx context.Context, token, newHash string, now time.Time) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $3, password_reset_token = NULL, password_reset_expires = NULL, updated_at = now()
		WHERE password_reset_token = $1 AND password_reset_expires > $2
		RETURNING id
	`, token, now, newHash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	return id, err
}

func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return r.exec(ctx, repository.ErrConflict, `
		UPDATE users SET two_factor_secret = $2, updated_at = now()
		WHERE id = $1 AND two_factor_enabled = FALSE
	`, id, secret)
}

func (r *UserRepository) EnableTwoFactor(ctx context.Context, id, backupCodes string) error {
	return r.exec(ctx, repository.ErrConflict, `
		UPDATE users SET two_factor_enabled = TRUE, backup_codes = $2, updated_at = now()
		WHERE id = $1 AND two_factor_enabled = FALSE AND two_factor_secret IS NOT NULL
	`, id, backupCodes)
}

func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx, repository.ErrNotFound, `
		UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = NULL, backup_codes = '[]', updated_at = now()
		WHERE id = $1
	`, id)
}

func (r *UserRepository) ReplaceBackupCodes(ctx context.Context, id, previous, next string) error {
	return r.exec(ctx, repository.ErrConflict, `
		UPDATE users SET backup_codes = $3, updated_at = now()
		WHERE id = $1 AND backup_codes = $2
	`, id, previous, next)
}

var _ repository.UserRepository = (*UserRepository)(nil)
