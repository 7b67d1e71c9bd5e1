package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
	"github.com/oksasatya/saas-auth/pkg/backupcode"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
)

type TwoFactorSetup struct {
	Secret string
	URI    string
	// QRCode is a data:image/png;base64 URL.
	QRCode string
}

// TwoFactorProof authorizes turning 2FA off. One matching field is enough.
type TwoFactorProof struct {
	Password   string
	Code       string
	BackupCode string
}

// SetupTwoFactor stores a pending secret. 2FA stays off until ConfirmTwoFactor succeeds.
func (s *Service) SetupTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	key, err := s.TOTP.GenerateSecret(u.Email)
	if err != nil {
		return nil, err
	}
	// The QR code is rendered before anything is stored so a failed render leaves no pending secret.
	qr, err := s.TOTP.RenderQRDataURL(key.URI)
	if err != nil {
		return nil, err
	}
	if err := s.Users.SetTwoFactorSecret(ctx, u.ID, key.Secret); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrTwoFactorAlreadyEnabled
		}
		return nil, err
	}
	return &TwoFactorSetup{Secret: key.Secret, URI: key.URI, QRCode: qr}, nil
}

// ConfirmTwoFactor enables 2FA with a code from the pending secret and returns fresh backup codes.
func (s *Service) ConfirmTwoFactor(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if u.TwoFactorSecret == nil {
		return nil, ErrTwoFactorNotSetUp
	}
	if !s.checkTOTP(ctx, u, code) {
		twoFactorFailures.Add(1)
		return nil, ErrInvalidTwoFactorCode
	}
	codes, err := backupcode.Generate(backupcode.DefaultCount)
	if err != nil {
		return nil, err
	}
	if err := s.Users.EnableTwoFactor(ctx, u.ID, backupcode.Serialize(codes)); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrTwoFactorNotSetUp
		}
		return nil, err
	}
	s.notify(ctx, u, templates.NewTwoFactorEnabledData(s.Brand, u.Name, u.Email, templates.WithTime(s.now())))
	return codes, nil
}

func (s *Service) DisableTwoFactor(ctx context.Context, userID string, proof TwoFactorProof) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if proof.Password == "" && proof.Code == "" && proof.BackupCode == "" {
		return ErrTwoFactorProofRequired
	}
	ok, err := s.proveOwnership(ctx, u, proof)
	if err != nil {
		return err
	}
	if !ok {
		twoFactorFailures.Add(1)
		return ErrInvalidTwoFactorCode
	}
	if err := s.Users.DisableTwoFactor(ctx, u.ID); err != nil {
		return err
	}
	if s.Steps != nil {
		if err := s.Steps.Reset(ctx, u.ID); err != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("reset totp step guard failed")
		}
	}
	return nil
}

func (s *Service) proveOwnership(ctx context.Context, u *entity.User, proof TwoFactorProof) (bool, error) {
	if proof.Password != "" && u.HasPassword() {
		ok, err := s.Hasher.Verify(proof.Password, *u.PasswordHash)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if proof.Code != "" && s.checkTOTP(ctx, u, proof.Code) {
		return true, nil
	}
	if proof.BackupCode != "" && backupcode.Verify(backupcode.Deserialize(u.BackupCodes), proof.BackupCode) {
		return true, nil
	}
	return false, nil
}

// RegenerateBackupCodes replaces the whole set after a valid TOTP code.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if !s.checkTOTP(ctx, u, code) {
		twoFactorFailures.Add(1)
		return nil, ErrInvalidTwoFactorCode
	}
	codes, err := backupcode.Generate(backupcode.DefaultCount)
	if err != nil {
		return nil, err
	}
	if err := s.Users.ReplaceBackupCodes(ctx, u.ID, u.BackupCodes, backupcode.Serialize(codes)); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrBackupCodesChanged
		}
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}
	return codes, nil
}
