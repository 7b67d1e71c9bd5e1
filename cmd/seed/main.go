package main

import (
	"context"
	"errors"
	"log"
	"os"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/oksasatya/saas-auth/config"
	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/domain/repository"
	pginfra "github.com/oksasatya/saas-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/saas-auth/pkg/helpers"
)

// seed creates a verified admin account, or promotes the existing one.
// SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD override the development defaults.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)
	ctx := context.Background()

	email := application.NormalizeEmail(getenv("SEED_ADMIN_EMAIL", "admin@example.com"))
	password := getenv("SEED_ADMIN_PASSWORD", "admin12345")
	if cfg.Env == "production" && os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Fatal("SEED_ADMIN_PASSWORD is required in production")
	}
	if n := utf8.RuneCountInString(password); n < application.MinPasswordLength || len(password) > application.MaxPasswordBytes {
		log.Fatalf("SEED_ADMIN_PASSWORD must be %d characters to %d bytes long", application.MinPasswordLength, application.MaxPasswordBytes)
	}

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 2, 1, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	users := pginfra.NewUserRepository(pool)

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := users.UpdateRole(ctx, existing.ID, entity.RoleAdmin); err != nil {
			log.Fatalf("failed to promote %s: %v", email, err)
		}
		logger.WithField("user_id", existing.ID).WithField("email", email).Info("existing user promoted to admin")
		return
	case !errors.Is(err, repository.ErrNotFound):
		log.Fatalf("failed to look up %s: %v", email, err)
	}

	hash, err := helpers.NewPasswordHasher(cfg.BcryptCost).Hash(password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	u := &entity.User{
		Email:         email,
		PasswordHash:  &hash,
		Name:          "Admin",
		Role:          entity.RoleAdmin,
		EmailVerified: true,
	}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	logger.WithField("user_id", u.ID).WithField("email", email).Info("admin seeded")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
