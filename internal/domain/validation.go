package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one field that failed validation.
type FieldError struct {
	Path     string // dotted path from the payload root, e.g. "params.input.content[0].text"
	Expected string // expected type or constraint
	Actual   string // offending value as JSON, or "<absent>"
	Cause    error  // optional structured cause (UnknownVariantError, ErrMissingDiscriminator)
}

func (f FieldError) String() string {
	path := f.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("%s: expected %s, got %s", path, f.Expected, f.Actual)
}

// ValidationError enumerates every field of a payload that did not conform
// to the target union.
type ValidationError struct {
	Union  string
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid %s: %s", v.Union, strings.Join(parts, "; "))
}

// Unwrap exposes ErrInvalidInput plus any structured causes to errors.Is/As.
func (v *ValidationError) Unwrap() []error {
	errs := []error{ErrInvalidInput}
	for _, f := range v.Fields {
		if f.Cause != nil {
			errs = append(errs, f.Cause)
		}
	}
	return errs
}

// UnknownVariantError is reported when a discriminator names no variant of
// the target union.
type UnknownVariantError struct {
	Union    string
	Tag      string
	Expected []string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s variant %q (expected one of %s)", e.Union, e.Tag, strings.Join(e.Expected, ", "))
}

func (e *UnknownVariantError) Unwrap() error { return ErrUnknownVariant }

// AsValidationError extracts the *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
