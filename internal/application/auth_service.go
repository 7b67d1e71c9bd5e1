package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
	"github.com/oksasatya/saas-auth/pkg/backupcode"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
)

// ForgotPasswordMessage is returned for every forgot-password request.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

type TokenPair struct {
	SessionToken  string
	SessionExpiry time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// AuthResult carries an empty Tokens when SessionIssued is false; the account exists either way.
type AuthResult struct {
	User          *entity.User
	Tokens        TokenPair
	EmailSent     bool
	SessionIssued bool
}

// LoginResult carries nil Tokens when RequiresTwoFactor is set.
type LoginResult struct {
	User                 *entity.User
	Tokens               *TokenPair
	RequiresTwoFactor    bool
	BackupCodesLow       bool
	BackupCodesRemaining int
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type TwoFactorLoginInput struct {
	Email      string
	Password   string
	Code       string
	BackupCode string
}

// issueSession signs a session/refresh pair under a fresh sid and makes it the user's active session.
func (s *Service) issueSession(ctx context.Context, u *entity.User) (TokenPair, error) {
	sid := uuid.NewString()
	access, aexp, err := s.JWT.GenerateSessionToken(u.ID, u.Email, sid)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate session token failed")
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(u.ID, u.Email, sid)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate refresh token failed")
		return TokenPair{}, err
	}
	if s.Sessions != nil {
		if err := s.Sessions.Save(ctx, u.ID, u.Email, sid, s.JWT.RefreshTTL); err != nil {
			return TokenPair{}, fmt.Errorf("save session: %w", err)
		}
	}
	return TokenPair{SessionToken: access, SessionExpiry: aexp, RefreshToken: refresh, RefreshExpiry: rexp}, nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := NormalizeEmail(in.Email)
	if err := s.checkPasswordLength(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.Users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	token, err := helpers.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.VerifyTokenTTL)

	u := &entity.User{
		Email:              email,
		PasswordHash:       &hash,
		Name:               in.Name,
		Role:               entity.RoleCustomer,
		EmailVerifyToken:   &token,
		EmailVerifyExpires: &expires,
		BackupCodes:        backupcode.Serialize(nil),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	registrations.Add(1)

	sent := s.sendVerification(ctx, u, token, expires)
	s.indexUser(ctx, u)

	res := &AuthResult{User: u, EmailSent: sent}
	pair, err := s.issueSession(ctx, u)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("registered without a session")
		return res, nil
	}
	res.Tokens, res.SessionIssued = pair, true
	return res, nil
}

// authenticate never tells "no such user" apart from "wrong password".
func (s *Service) authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.Users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		loginFailures.Add(1)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.HasPassword() {
		loginFailures.Add(1)
		return nil, ErrInvalidCredentials
	}
	ok, err := s.Hasher.Verify(password, *u.PasswordHash)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("stored password hash is unreadable")
		return nil, err
	}
	if !ok {
		loginFailures.Add(1)
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Login signs in with a password. Users with 2FA enabled get RequiresTwoFactor and no tokens.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return &LoginResult{User: u, RequiresTwoFactor: true}, nil
	}
	pair, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	logins.Add(1)
	return &LoginResult{User: u, Tokens: &pair}, nil
}

// LoginTwoFactor signs in with a password plus either a TOTP code or a backup code.
func (s *Service) LoginTwoFactor(ctx context.Context, in TwoFactorLoginInput) (*LoginResult, error) {
	u, err := s.authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	res := &LoginResult{User: u}
	previousCodes := u.BackupCodes
	spent := false

	if u.TwoFactorEnabled {
		switch {
		case in.Code != "":
			if !s.checkTOTP(ctx, u, in.Code) {
				twoFactorFailures.Add(1)
				return nil, ErrInvalidTwoFactorCode
			}
		case in.BackupCode != "":
			remaining, err := s.spendBackupCode(ctx, u, in.BackupCode)
			if err != nil {
				return nil, err
			}
			spent = true
			res.BackupCodesLow = backupcode.ShouldRegenerate(remaining, backupcode.LowThreshold)
			res.BackupCodesRemaining = len(remaining)
		default:
			return nil, ErrTwoFactorRequired
		}
	}

	pair, err := s.issueSession(ctx, u)
	if err != nil {
		if spent {
			s.restoreBackupCodes(ctx, u, previousCodes)
		}
		return nil, err
	}
	logins.Add(1)
	res.Tokens = &pair
	return res, nil
}

// spendBackupCode removes code from the stored set. A concurrent use of the same set counts as invalid.
func (s *Service) spendBackupCode(ctx context.Context, u *entity.User, code string) ([]string, error) {
	codes := backupcode.Deserialize(u.BackupCodes)
	if !backupcode.Verify(codes, code) {
		twoFactorFailures.Add(1)
		return nil, ErrInvalidTwoFactorCode
	}
	remaining := backupcode.Consume(codes, code)
	next := backupcode.Serialize(remaining)
	if err := s.Users.ReplaceBackupCodes(ctx, u.ID, u.BackupCodes, next); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrInvalidTwoFactorCode
		}
		return nil, err
	}
	u.BackupCodes = next
	backupCodesUsed.Add(1)
	return remaining, nil
}

// restoreBackupCodes puts back a code spent by a login that then failed. A set changed in the meantime is left alone.
func (s *Service) restoreBackupCodes(ctx context.Context, u *entity.User, previous string) {
	if err := s.Users.ReplaceBackupCodes(ctx, u.ID, u.BackupCodes, previous); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("restore backup code failed")
		return
	}
	u.BackupCodes = previous
	backupCodesUsed.Add(-1)
}

// checkTOTP validates code and records its step. A step guard failure is logged and the code accepted.
func (s *Service) checkTOTP(ctx context.Context, u *entity.User, code string) bool {
	if u.TwoFactorSecret == nil {
		return false
	}
	step, ok := s.TOTP.Validate(*u.TwoFactorSecret, code, s.now())
	if !ok {
		return false
	}
	if s.Steps == nil {
		return true
	}
	fresh, err := s.Steps.Accept(ctx, u.ID, step)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("totp step guard unavailable")
		return true
	}
	return fresh
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	id, err := s.Users.ConsumeEmailVerifyToken(ctx, token, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, u, templates.NewWelcomeData(s.Brand, u.Name, u.Email, templates.WithTime(s.now())))
	s.indexUser(ctx, u)
	return u, nil
}

// ResendVerification replaces the user's verification token and mails it. It reports whether the email went out.
func (s *Service) ResendVerification(ctx context.Context, email string) (bool, error) {
	u, err := s.Users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, err
	}
	if u.EmailVerified {
		return false, ErrAlreadyVerified
	}
	token, err := helpers.GenerateOpaqueToken()
	if err != nil {
		return false, err
	}
	expires := s.now().Add(s.VerifyTokenTTL)
	if err := s.Users.SetEmailVerifyToken(ctx, u.ID, token, expires); err != nil {
		return false, err
	}
	return s.sendVerification(ctx, u, token, expires), nil
}

// ForgotPassword always answers ForgotPasswordMessage. Only existing users get a token and an email.
func (s *Service) ForgotPassword(ctx context.Context, email string) string {
	u, err := s.Users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.Logger.WithError(err).Error("forgot password lookup failed")
		}
		return ForgotPasswordMessage
	}
	token, err := helpers.GenerateOpaqueToken()
	if err != nil {
		s.Logger.WithError(err).Error("generate reset token failed")
		return ForgotPasswordMessage
	}
	expires := s.now().Add(s.ResetTokenTTL)
	if err := s.Users.SetPasswordResetToken(ctx, u.ID, token, expires); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("store reset token failed")
		return ForgotPasswordMessage
	}
	data := templates.NewForgotPasswordData(s.Brand, u.Name, u.Email, withToken(s.Links.ResetPassword, token),
		templates.WithExpiresAt(expires), templates.WithTime(s.now()))
	s.notify(ctx, u, data)
	return ForgotPasswordMessage
}

// ResetPassword redeems a reset token and ends the user's current session.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := s.checkPasswordLength(password); err != nil {
		return err
	}
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return err
	}
	id, err := s.Users.ConsumePasswordResetToken(ctx, token, hash, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return err
	}
	s.endSession(ctx, id)
	if u, err := s.Users.GetByID(ctx, id); err == nil {
		s.notify(ctx, u, templates.NewPasswordChangedData(s.Brand, u.Name, u.Email, templates.WithTime(s.now())))
	}
	return nil
}

// Refresh exchanges a refresh token of the active session for a new pair; the old pair stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*entity.User, TokenPair, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if s.Sessions != nil {
		ok, err := s.Sessions.Active(ctx, claims.UserID, claims.SessionID)
		if err != nil {
			return nil, TokenPair{}, err
		}
		if !ok {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
	}
	u, err := s.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

// Authenticate resolves a bearer session token to its user.
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (*entity.User, *helpers.Claims, error) {
	claims, err := s.JWT.ParseSessionToken(sessionToken)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if s.Sessions != nil {
		ok, err := s.Sessions.Active(ctx, claims.UserID, claims.SessionID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, ErrInvalidCredentials
		}
	}
	u, err := s.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	return u, claims, nil
}

func (s *Service) Logout(ctx context.Context, userID string) error {
	if s.Sessions == nil {
		return nil
	}
	return s.Sessions.Delete(ctx, userID)
}

func (s *Service) endSession(ctx context.Context, userID string) {
	if err := s.Logout(ctx, userID); err != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Warn("drop session failed")
	}
}
