package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
)

type ctxKey string

const ContextUserKey ctxKey = "user"

// User is the authenticated principal attached to a request.
type User struct {
	ID    int64          `json:"id"`
	Email string         `json:"email"`
	Name  string         `json:"name"`
	Role  usermodel.Role `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u.Role == usermodel.RoleAdmin
}

func (u *User) HasRole(roles ...usermodel.Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, u)
}

// UserStore is the read side of the user table that authentication needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*usermodel.User, error)
	GetByID(ctx context.Context, id int64) (*usermodel.User, error)
}

type TokenGenerator interface {
	GenerateAccessToken(u *usermodel.User) (token string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (*AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	LoadPrincipal(ctx context.Context, userID int64) (*User, error)
}

type AuthTokens struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID int64          `json:"user_id"`
	Email  string         `json:"email"`
	Role   usermodel.Role `json:"role"`
	jwt.RegisteredClaims
}

func principalFromModel(u *usermodel.User) *User {
	return &User{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}
