package server

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/keepintouch/backend/apperror"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// RequestValidator adapts go-playground/validator to echo's Validator
// interface and translates the first failure into the message text clients
// expect, keyed by field and rule.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username_chars", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	return &RequestValidator{validate: v}
}

func (rv *RequestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperror.BadRequest(fieldMessage(fieldErrs[0]))
	}
	return apperror.BadRequest("Invalid request body")
}

func fieldMessage(fe validator.FieldError) string {
	// Login accepts any non-empty password; the length rules only apply
	// where a password is being set.
	if fe.StructNamespace() == "LoginRequest.Password" {
		return "Password cannot be empty"
	}

	switch fe.Field() {
	case "Username":
		switch fe.Tag() {
		case "required", "min":
			return "Username must be at least 3 characters long"
		case "max":
			return "Username cannot exceed 30 characters"
		case "username_chars":
			return "Username can only contain letters, numbers, and underscores"
		}
	case "Name":
		switch fe.Tag() {
		case "required":
			return "Name is required"
		case "max":
			return "Name cannot exceed 50 characters"
		}
	case "Email":
		return "Please fill a valid email address"
	case "Password", "NewPassword":
		switch fe.Tag() {
		case "required", "min":
			return "Password must be at least 6 characters long"
		case "max":
			return "Password cannot exceed 128 characters"
		}
	case "CurrentPassword":
		return "Current password is required"
	case "Identifier":
		return "Username/email and password are required"
	case "RefreshToken":
		return "Refresh token is required"
	case "Token":
		return "Reset token is required"
	}
	return fmt.Sprintf("Invalid value for %s", fe.Field())
}
