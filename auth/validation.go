package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
)

// MinPasswordLength is the shortest password the auth service accepts.
const MinPasswordLength = 6

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	FullName string `validate:"required"`
}

// CredentialsInput is the login form.
type CredentialsInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// ResetInput is the password recovery form.
type ResetInput struct {
	Email string `validate:"required,email"`
}

// PasswordUpdateInput is the new-password form.
type PasswordUpdateInput struct {
	Password     string `validate:"required,min=6"`
	Confirmation string `validate:"required,eqfield=Password"`
}

// Validator checks form input before it reaches the backend and reports
// failures with the same error kinds the backend errors map to.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate trims string fields in place and validates input, which must be
// a pointer to one of the input structs.
func (v *Validator) Validate(input any) error {
	trimInput(input)
	err := v.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.AuthErr(apperrors.ErrAuth, err.Error())
	}
	return fieldError(fieldErrs[0])
}

func fieldError(fe validator.FieldError) error {
	if fe.Tag() == "required" {
		return apperrors.AuthErr(apperrors.ErrMissingField, strings.ToLower(fe.Field())+" is required")
	}
	switch fe.Field() {
	case "Email":
		return apperrors.AuthErr(apperrors.ErrInvalidEmail, "invalid email format")
	case "Password":
		return apperrors.AuthErr(apperrors.ErrWeakPassword, "password must be at least 6 characters")
	case "Confirmation":
		return apperrors.AuthErr(apperrors.ErrPasswordMismatch, "passwords do not match")
	}
	return apperrors.AuthErr(apperrors.ErrAuth, fe.Error())
}

func trimInput(input any) {
	switch in := input.(type) {
	case *SignUpInput:
		in.Email = strings.TrimSpace(in.Email)
		in.FullName = strings.TrimSpace(in.FullName)
	case *CredentialsInput:
		in.Email = strings.TrimSpace(in.Email)
	case *ResetInput:
		in.Email = strings.TrimSpace(in.Email)
	}
}
