package registry

import (
	"fmt"
	"net/mail"
	"strings"

	"confreg.org/internal/auth"
)

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field problem found in a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return auth.ErrInvalidInput }

// Invalid builds a single-field validation error.
func Invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// ConflictError reports a uniqueness violation with a client-safe message.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return auth.ErrConflict }

// Conflict reports that field already holds the submitted value elsewhere.
func Conflict(field, message string) error {
	return &ConflictError{Field: field, Message: message}
}

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg})
}

// required records msg against field when value is blank. An empty msg
// falls back to "<field> is required".
func (v *validator) required(field, value, msg string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	if msg == "" {
		msg = fmt.Sprintf("%s is required", field)
	}
	v.add(field, msg)
	return false
}

func (v *validator) email(field, value string) {
	value = strings.TrimSpace(value)
	addr, err := mail.ParseAddress(value)
	if value == "" || err != nil || addr.Address != value {
		v.add(field, "Invalid email address")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
