package validator

import (
	"errors"
	"strings"
)

// ValidationError describes a single failed validation rule on a single field.
type ValidationError struct {
	Field             string
	Message           string
	TranslationKey    string
	TranslationValues map[string]any
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every ValidationError raised while validating a struct.
type ValidationErrors []ValidationError

// Add appends an error to the collection.
func (e *ValidationErrors) Add(err ValidationError) {
	*e = append(*e, err)
}

// IsEmpty reports whether no errors were collected.
func (e ValidationErrors) IsEmpty() bool {
	return len(e) == 0
}

// Error implements the error interface, joining all field errors with "; ".
func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// For returns every error attached to the given field path.
func (e ValidationErrors) For(field string) []ValidationError {
	var out []ValidationError
	for _, err := range e {
		if err.Field == field {
			out = append(out, err)
		}
	}
	return out
}

// Has reports whether any collected error is attached to the given field path.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ExtractValidationErrors unwraps err into a ValidationErrors, or returns nil
// if err is not (or does not wrap) a ValidationErrors.
func ExtractValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
