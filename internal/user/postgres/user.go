package postgres

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*usermodel.User, error) {
	var u usermodel.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

// GetByEmail matches case-insensitively; emails are stored lower-cased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	var u usermodel.User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *usermodel.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.db.WithContext(ctx).Create(u).Error
}

// Upsert creates the user or refreshes its name, role and password by email.
func (r *UserRepository) Upsert(ctx context.Context, u *usermodel.User) error {
	existing, err := r.GetByEmail(ctx, u.Email)
	if errors.Is(err, usermodel.ErrNotFound) {
		return r.Create(ctx, u)
	}
	if err != nil {
		return err
	}
	u.ID = existing.ID
	return r.db.WithContext(ctx).Model(existing).Updates(map[string]interface{}{
		"name":          u.Name,
		"role":          u.Role,
		"password_hash": u.PasswordHash,
		"company":       u.Company,
		"is_active":     u.IsActive,
	}).Error
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usermodel.ErrNotFound
	}
	return err
}
