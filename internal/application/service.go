package application

import (
	"context"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/mailer"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
	"github.com/oksasatya/saas-auth/pkg/oauth"
	"github.com/oksasatya/saas-auth/pkg/totp"
)

// SessionStore tracks the one active session id per user.
type SessionStore interface {
	Save(ctx context.Context, userID, email, sid string, ttl time.Duration) error
	Active(ctx context.Context, userID, sid string) (bool, error)
	Delete(ctx context.Context, userID string) error
}

// StepGuard refuses TOTP time steps a user has already spent.
type StepGuard interface {
	Accept(ctx context.Context, userID string, step int64) (bool, error)
	Reset(ctx context.Context, userID string) error
}

type AvatarUploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

type UserIndex interface {
	Index(ctx context.Context, u *entity.User) error
	Search(ctx context.Context, q string, size int) ([]entity.UserDocument, error)
}

type OAuthClient interface {
	AuthCodeURL(p oauth.Provider, state string) (string, error)
	Exchange(ctx context.Context, p oauth.Provider, code string) (oauth.Identity, error)
}

// Links are the front-end pages that receive emailed tokens as ?token=.
type Links struct {
	VerifyEmail   string
	ResetPassword string
}

// Deps lists what NewService needs. Sessions, Steps, Avatars, Index and OAuth are optional.
type Deps struct {
	Users    repo.UserRepository
	Accounts repo.OAuthAccountRepository
	Hasher   *helpers.PasswordHasher
	JWT      *helpers.JWTManager
	TOTP     *totp.Engine
	OAuth    OAuthClient
	Sessions SessionStore
	Steps    StepGuard
	Mail     mailer.Sender
	Avatars  AvatarUploader
	Index    UserIndex
	Logger   *logrus.Logger
	Brand    templates.Brand
	Links    Links

	VerifyTokenTTL time.Duration
	ResetTokenTTL  time.Duration
	MailTimeout    time.Duration
	Now            func() time.Time
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.VerifyTokenTTL <= 0 {
		d.VerifyTokenTTL = 24 * time.Hour
	}
	if d.ResetTokenTTL <= 0 {
		d.ResetTokenTTL = time.Hour
	}
	if d.MailTimeout <= 0 {
		d.MailTimeout = 10 * time.Second
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.TOTP == nil {
		d.TOTP = totp.NewEngine(d.Brand.AppName)
	}
	if d.Mail == nil {
		d.Mail = mailer.LogSender{Logger: d.Logger}
	}
	return &Service{Deps: d}
}

// NormalizeEmail trims and lower-cases an address before storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

// checkPasswordLength counts characters for the minimum and bytes for the bcrypt input limit.
func (s *Service) checkPasswordLength(p string) error {
	if utf8.RuneCountInString(p) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(p) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// MinPasswordLength matches the `pwd` validation alias.
const MinPasswordLength = 8

// MaxPasswordBytes is the most bcrypt will hash.
const MaxPasswordBytes = helpers.MaxPasswordBytes

// indexUser is best-effort; search lags behind the database on failure.
func (s *Service) indexUser(ctx context.Context, u *entity.User) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Index(ctx, u); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
	}
}
