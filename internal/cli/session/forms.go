package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LoginForm is what a user submits to sign in
type LoginForm struct {
	Email      string `validate:"required,email"`
	Password   string `validate:"required"`
	RememberMe bool
}

// RegisterForm is what a user submits to create an account
type RegisterForm struct {
	Email           string `validate:"required,email"`
	Password        string `validate:"required,password"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
	FirstName       string `validate:"required,max=50"`
	LastName        string `validate:"required,max=50"`
	TenantName      string `validate:"omitempty,max=100"`
	TermsAccepted   bool   `validate:"eq=true"`
}

// PasswordResetForm sets a new password from a reset token
type PasswordResetForm struct {
	Token           string `validate:"required"`
	Password        string `validate:"required,password"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

// ForgotPasswordForm requests a reset email
type ForgotPasswordForm struct {
	Email string `validate:"required,email"`
}

// At least 8 chars from the allowed set, with one letter and one digit
var (
	passwordChars  = regexp.MustCompile(`^[A-Za-z\d@$!%*#?&]{8,}$`)
	passwordLetter = regexp.MustCompile(`[A-Za-z]`)
	passwordDigit  = regexp.MustCompile(`\d`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})

	return v
}

// ValidPassword reports whether password meets the console's password policy
func ValidPassword(password string) bool {
	return passwordChars.MatchString(password) &&
		passwordLetter.MatchString(password) &&
		passwordDigit.MatchString(password)
}

// ValidEmail reports whether email is a plausible address
func ValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func (f LoginForm) Validate() error          { return validateForm(f) }
func (f RegisterForm) Validate() error       { return validateForm(f) }
func (f PasswordResetForm) Validate() error  { return validateForm(f) }
func (f ForgotPasswordForm) Validate() error { return validateForm(f) }

// FieldError describes the first problem found on one form field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists field problems in declaration order
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return strings.Join(parts, "; ")
}

// Field returns the message for one field, or empty
func (e *ValidationError) Field(name string) string {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message
		}
	}
	return ""
}

func validateForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &ValidationError{}
	seen := map[string]bool{}
	for _, fe := range fieldErrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email address"
	case "password":
		return "Password must be at least 8 characters and contain a letter and a number"
	case "eqfield":
		return "Passwords do not match"
	case "max":
		return fmt.Sprintf("Maximum length is %s characters", fe.Param())
	case "eq":
		return "You must accept the terms"
	default:
		return "Invalid value"
	}
}
