package application

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/mailer/templates"
)

// UpdateProfileInput leaves a field unchanged when it is nil.
type UpdateProfileInput struct {
	Name      *string
	Email     *string
	AvatarURL *string
}

type ProfileResult struct {
	User *entity.User
	// VerificationSent is set when the email changed and a new verification link went out.
	VerificationSent bool
}

func (s *Service) Me(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile changes name, avatar and email. A new email must be verified again.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*ProfileResult, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	var verifyToken string
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		if email != "" && email != u.Email {
			if _, err := s.Users.GetByEmail(ctx, email); err == nil {
				return nil, ErrEmailTaken
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, err
			}
			if verifyToken, err = helpers.GenerateOpaqueToken(); err != nil {
				return nil, err
			}
			expires := s.now().Add(s.VerifyTokenTTL)
			u.Email = email
			u.EmailVerified = false
			u.EmailVerifyToken = &verifyToken
			u.EmailVerifyExpires = &expires
		}
	}

	if err := s.Users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	res := &ProfileResult{User: u}
	if verifyToken != "" {
		res.VerificationSent = s.sendVerification(ctx, u, verifyToken, *u.EmailVerifyExpires)
	}
	s.indexUser(ctx, u)
	return res, nil
}

var avatarExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadAvatar stores the image under avatars/<user>/ and saves its URL on the profile.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader, contentType string) (*entity.User, error) {
	if s.Avatars == nil {
		return nil, ErrStorageUnavailable
	}
	ext, ok := avatarExt[contentType]
	if !ok {
		return nil, ErrUnsupportedFileType
	}
	if _, err := s.Me(ctx, userID); err != nil {
		return nil, err
	}
	objectPath := path.Join("avatars", userID, uuid.NewString()+ext)
	url, err := s.Avatars.Upload(ctx, objectPath, contentType, r)
	if err != nil {
		return nil, err
	}
	res, err := s.UpdateProfile(ctx, userID, UpdateProfileInput{AvatarURL: &url})
	if err != nil {
		return nil, err
	}
	return res.User, nil
}

// ChangePassword requires the current password; OAuth-only accounts have none to present.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return ErrNoPassword
	}
	ok, err := s.Hasher.Verify(current, *u.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := s.checkPasswordLength(next); err != nil {
		return err
	}
	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	s.notify(ctx, u, templates.NewPasswordChangedData(s.Brand, u.Name, u.Email, templates.WithTime(s.now())))
	return nil
}
