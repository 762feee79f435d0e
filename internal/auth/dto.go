package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"

	errors "github.com/frahmantamala/client-portal/internal"
)

var validate = validator.New()

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// Validate checks required fields and returns a validation AppError on failure.
func (d *LoginDTO) Validate() error {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			return errors.NewValidationFieldError(field, field+" is invalid or missing", errors.ErrCodeValidationFailed)
		}
		return errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
