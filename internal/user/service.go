package user

import (
	"context"
	"errors"

	apperrors "github.com/frahmantamala/client-portal/internal"
	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*usermodel.User, error)
	GetByEmail(ctx context.Context, email string) (*usermodel.User, error)
	Create(ctx context.Context, u *usermodel.User) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, usermodel.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.NewInternalError("failed to get user", err)
	}
	return FromDataModel(u), nil
}

// Contact returns where payment emails for userID should go.
func (s *Service) Contact(ctx context.Context, userID int64) (email, name string, err error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return u.Email, u.Name, nil
}
