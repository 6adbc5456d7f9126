// Package form holds the typed request bodies accepted by the site and the
// validator that checks them before any domain logic runs.
package form

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks every input-shape failure.
var ErrValidation = errors.New("validation failed")

// Error describes the first rule a submission violated.  Message is meant to
// be shown to the user as is.
type Error struct {
	Field   string
	Rule    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return ErrValidation }

// SignupForm is the body of POST /signup.
type SignupForm struct {
	Name     string `form:"name" validate:"required"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=5,bytesmax=72"`
}

// Normalize trims the fields that are compared or displayed.  Passwords are
// taken verbatim.
func (f *SignupForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
}

// LoginForm is the body of POST /login.
type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=5,bytesmax=72"`
}

func (f *LoginForm) Normalize() {
	f.Email = strings.TrimSpace(f.Email)
}

// Validator wraps go-playground/validator and turns its errors into a single
// *Error.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator that reports fields by their form name.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// bcrypt rejects passwords longer than 72 bytes; max counts runes.
	if err := v.RegisterValidation("bytesmax", bytesMax); err != nil {
		panic(err)
	}
	return &Validator{v: v}
}

func bytesMax(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// Validate checks i against its `validate` tags.  The returned error is an
// *Error for the first failing field in declaration order.
func (v *Validator) Validate(i any) error {
	err := v.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return describe(verrs[0])
	}
	return fmt.Errorf("validate: %w", err)
}

func describe(fe validator.FieldError) *Error {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%q is required", field)
	case "email":
		msg = fmt.Sprintf("%q must be a valid email", field)
	case "min":
		msg = fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case "bytesmax":
		msg = fmt.Sprintf("%q length must be at most %s bytes long", field, fe.Param())
	default:
		msg = fmt.Sprintf("%q is invalid", field)
	}
	return &Error{Field: field, Rule: fe.Tag(), Message: msg}
}

// Message returns the user-facing text of a validation error, or "" when err
// is not one.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return ""
}

// ParseSignup reads a signup submission, trims it and validates it.
func (v *Validator) ParseSignup(values url.Values) (SignupForm, error) {
	f := SignupForm{
		Name:     values.Get("name"),
		Email:    values.Get("email"),
		Password: values.Get("password"),
	}
	f.Normalize()
	return f, v.Validate(&f)
}

// ParseLogin reads a login submission, trims it and validates it.
func (v *Validator) ParseLogin(values url.Values) (LoginForm, error) {
	f := LoginForm{
		Email:    values.Get("email"),
		Password: values.Get("password"),
	}
	f.Normalize()
	return f, v.Validate(&f)
}
