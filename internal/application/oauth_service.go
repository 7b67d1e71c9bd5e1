package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
	"github.com/oksasatya/saas-auth/pkg/backupcode"
	"github.com/oksasatya/saas-auth/pkg/oauth"
)

// placeholderEmailDomain hosts addresses for federated users whose provider shares no verified email.
const placeholderEmailDomain = "oauth.local"

func (s *Service) OAuthAuthorizationURL(p oauth.Provider, state string) (string, error) {
	if s.OAuth == nil {
		return "", oauth.ErrProviderNotConfigured
	}
	return s.OAuth.AuthCodeURL(p, state)
}

// OAuthCallback exchanges the provider code, resolves the local user and starts a session.
func (s *Service) OAuthCallback(ctx context.Context, p oauth.Provider, code string) (*AuthResult, error) {
	if s.OAuth == nil {
		return nil, oauth.ErrProviderNotConfigured
	}
	ident, err := s.OAuth.Exchange(ctx, p, code)
	if err != nil {
		s.Logger.WithError(err).WithField("provider", p).Warn("oauth exchange failed")
		return nil, err
	}
	u, err := s.LinkOrCreateUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	pair, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	oauthLogins.Add(1)
	return &AuthResult{User: u, Tokens: pair}, nil
}

// LinkOrCreateUser returns the user owning ident, linking by verified email or creating one.
// When a concurrent callback inserts the same account or email first, the lookup runs again.
func (s *Service) LinkOrCreateUser(ctx context.Context, ident oauth.Identity) (*entity.User, error) {
	for attempt := 0; attempt < 2; attempt++ {
		u, err := s.linkOrCreate(ctx, ident)
		if errors.Is(err, repo.ErrDuplicate) {
			continue
		}
		return u, err
	}
	return nil, fmt.Errorf("link %s account %s: %w", ident.Provider, ident.ExternalID, repo.ErrConflict)
}

func (s *Service) linkOrCreate(ctx context.Context, ident oauth.Identity) (*entity.User, error) {
	provider := string(ident.Provider)

	acc, err := s.Accounts.GetByProvider(ctx, provider, ident.ExternalID)
	switch {
	case err == nil:
		if err := s.Accounts.UpdateTokens(ctx, acc.ID, ident.AccessToken, ident.RefreshToken); err != nil {
			return nil, err
		}
		return s.Users.GetByID(ctx, acc.UserID)
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	link := &entity.OAuthAccount{
		Provider:          provider,
		ProviderAccountID: ident.ExternalID,
		AccessToken:       ident.AccessToken,
		RefreshToken:      ident.RefreshToken,
	}

	email := NormalizeEmail(ident.Email)
	if email != "" {
		u, err := s.Users.GetByEmail(ctx, email)
		if err == nil {
			link.UserID = u.ID
			if err := s.Accounts.Create(ctx, link); err != nil {
				return nil, err
			}
			s.Logger.WithField("user_id", u.ID).WithField("provider", provider).Info("oauth account linked by email")
			return u, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	u := &entity.User{
		Email:         email,
		Name:          ident.Name,
		AvatarURL:     ident.AvatarURL,
		Role:          entity.RoleCustomer,
		EmailVerified: email != "",
		BackupCodes:   backupcode.Serialize(nil),
	}
	if email == "" {
		u.Email = fmt.Sprintf("%s_%s@%s", provider, ident.ExternalID, placeholderEmailDomain)
	}
	if err := s.Accounts.CreateWithUser(ctx, u, link); err != nil {
		return nil, err
	}
	registrations.Add(1)
	s.indexUser(ctx, u)
	return u, nil
}
