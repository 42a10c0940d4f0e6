// Package validation validates request payloads with go-playground/validator
// and turns failures into per-field messages keyed by the JSON field name.
//
//	type loginRequest struct {
//	    Username string `json:"username" validate:"required"`
//	    Password string `json:"password" validate:"required"`
//	}
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return c.JSON(http.StatusBadRequest, verr.Body())
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/bandou-movie/internal/utils"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed rule on one field.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// RequestValidationError collects every field failure of one request.
type RequestValidationError struct {
	errors []FieldError
}

// NewFieldError builds a single-field validation error for checks that run
// outside struct tags, such as uniqueness or cross-field comparisons.
func NewFieldError(field, message string) *RequestValidationError {
	return &RequestValidationError{errors: []FieldError{{Field: field, Tag: "custom", Message: message}}}
}

// Add appends another field failure and returns the receiver.
func (ve *RequestValidationError) Add(field, message string) *RequestValidationError {
	ve.errors = append(ve.errors, FieldError{Field: field, Tag: "custom", Message: message})
	return ve
}

// Errors returns the collected failures in validation order.
func (ve *RequestValidationError) Errors() []FieldError { return ve.errors }

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve.errors))
	for _, e := range ve.errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Fields maps each failing field to its messages.
func (ve *RequestValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(ve.errors))
	for _, e := range ve.errors {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// Body is the JSON body written for a 400 response.
func (ve *RequestValidationError) Body() map[string]any {
	return map[string]any{"error": ve.Error(), "fields": ve.Fields()}
}

// GetValidator returns the shared validator with the project rules registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("password_policy", func(fl validator.FieldLevel) bool {
			return utils.PasswordStrong(fl.Field().String())
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// ValidateStruct returns nil when s passes, otherwise the translated failures.
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewFieldError("non_field_errors", err.Error())
	}
	out := &RequestValidationError{errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.errors = append(out.errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: translate(fe),
		})
	}
	return out
}

var messages = map[string]string{
	"required":        "%s is required",
	"email":           "%s must be a valid email address",
	"notblank":        "%s may not be blank",
	"password_policy": "%s must be at least 8 characters and contain upper case, lower case and a digit",
	"url":             "%s must be a valid URL",
	"numeric":         "%s must contain only digits",
}

var messagesWithParam = map[string]string{
	"min":     "%s must be at least %s",
	"max":     "%s must be at most %s",
	"gte":     "%s must be greater than or equal to %s",
	"lte":     "%s must be less than or equal to %s",
	"len":     "%s must be exactly %s characters",
	"oneof":   "%s must be one of: %s",
	"eqfield": "%s must match %s",
}

func translate(fe validator.FieldError) string {
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	if tmpl, ok := messagesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// SortedFields lists failing field names alphabetically, handy for logs.
func (ve *RequestValidationError) SortedFields() []string {
	names := make([]string, 0, len(ve.errors))
	seen := map[string]bool{}
	for _, e := range ve.errors {
		if !seen[e.Field] {
			seen[e.Field] = true
			names = append(names, e.Field)
		}
	}
	sort.Strings(names)
	return names
}
