package user

import (
	"time"

	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
)

// User is the profile exposed over the API; the password hash never leaves the store.
type User struct {
	ID        int64          `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Role      usermodel.Role `json:"role"`
	Company   string         `json:"company,omitempty"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == usermodel.RoleAdmin
}

func FromDataModel(u *usermodel.User) *User {
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Company:   u.Company,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}
