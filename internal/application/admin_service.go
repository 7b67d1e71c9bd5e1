package application

import (
	"context"
	"errors"
	"strings"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	repo "github.com/oksasatya/saas-auth/internal/domain/repository"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	defaultSearchSize = 10
	maxSearchSize     = 50
)

type UserPage struct {
	Users   []entity.User
	Total   int
	Page    int
	PerPage int
}

func (s *Service) ListUsers(ctx context.Context, page, perPage int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > maxPageSize {
		perPage = defaultPageSize
	}
	users, total, err := s.Users.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: users, Total: total, Page: page, PerPage: perPage}, nil
}

// UpdateUserRole assigns role to target. Admins cannot change their own role.
func (s *Service) UpdateUserRole(ctx context.Context, actorID, targetID, role string) (*entity.User, error) {
	r, err := entity.ParseRole(role)
	if err != nil {
		return nil, ErrInvalidRole
	}
	if actorID == targetID {
		return nil, ErrOwnRole
	}
	if err := s.Users.UpdateRole(ctx, targetID, r); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u, err := s.Me(ctx, targetID)
	if err != nil {
		return nil, err
	}
	s.Logger.WithField("user_id", targetID).WithField("actor_id", actorID).WithField("role", r).Info("role changed")
	s.indexUser(ctx, u)
	return u, nil
}

func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]entity.UserDocument, error) {
	if s.Index == nil {
		return nil, ErrSearchUnavailable
	}
	if size <= 0 || size > maxSearchSize {
		size = defaultSearchSize
	}
	return s.Index.Search(ctx, strings.TrimSpace(q), size)
}
