// Package validation checks operation parameters before any remote call is made.
// It wraps go-playground/validator with lab-specific rules and error formatting.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/field-workshops/labkit/http"
)

var (
	// platform identifiers: letters, digits, _ and $, not starting with a digit
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][0-9a-zA-Z_$]{0,127}$`)
	// RFC 1123 label, the shape of namespace and service names
	k8sNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// Validator wraps go-playground/validator with custom validation logic.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator instance with custom validation rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// json names read better in errors than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		panic(fmt.Sprintf("register identifier validation: %v", err))
	}
	if err := v.RegisterValidation("k8sname", validateK8sName); err != nil {
		panic(fmt.Sprintf("register k8sname validation: %v", err))
	}

	return &Validator{validate: v}
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Default returns the shared Validator.
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultValidator = NewValidator()
	})
	return defaultValidator
}

// Struct validates s with the shared Validator.
func Struct(s any) error {
	return Default().Validate(s)
}

// Validate performs validation on the provided struct and returns any validation errors.
func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return http.NewValidationError(err.Error(), "")
	}
	return nil
}

// ValidationError lists every field that failed validation.
// It belongs to the http.ValidationError category.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError creates a ValidationError from go-playground/validator errors.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fieldErrors := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   err.Field(),
			Message: getErrorMessage(err),
		})
	}
	return &ValidationError{Errors: fieldErrors}
}

func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s", ve.Errors[0].Message)
	default:
		msgs := make([]string, 0, len(ve.Errors))
		for _, fe := range ve.Errors {
			msgs = append(msgs, fe.Message)
		}
		return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
	}
}

// Type implements http.ClientError.
func (ve *ValidationError) Type() http.ErrorType {
	return http.ValidationError
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid e-mail address", fe.Field())
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "identifier":
		return fmt.Sprintf("%s must start with a letter or _ and contain only letters, digits, _ or $", fe.Field())
	case "k8sname":
		return fmt.Sprintf("%s must be a lowercase RFC 1123 name", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}

func validateK8sName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return len(name) <= 63 && k8sNamePattern.MatchString(name)
}
