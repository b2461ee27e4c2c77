package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

var (
	alphaPattern      = regexp.MustCompile(`^[a-zA-Z]+$`)
	alphanumPattern   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	numericPattern    = regexp.MustCompile(`^[0-9]+$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9\s\-().]{7,20}$`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	uuidVersionPrefix = map[int]string{1: "1", 2: "2", 3: "3", 4: "4", 5: "5"}
)

// MinLenString builds a Rule asserting a string is at least min runes long.
func MinLenString(field, value string, min int) Rule {
	return Rule{
		Check: func() bool {
			return len([]rune(value)) >= min
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at least %d characters long", min),
			TranslationKey: "validation.min_length",
			TranslationValues: map[string]any{
				"field": field,
				"min":   min,
			},
		},
	}
}

// MaxLenString builds a Rule asserting a string is at most max runes long.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool {
			return len([]rune(value)) <= max
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at most %d characters long", max),
			TranslationKey: "validation.max_length",
			TranslationValues: map[string]any{
				"field": field,
				"max":   max,
			},
		},
	}
}

// ValidEmail builds a Rule asserting value is an RFC 5322 address.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			_, err := mail.ParseAddress(value)
			return err == nil
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must be a valid email address",
			TranslationKey: "validation.email",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidURL builds a Rule asserting value parses as an absolute URL with a scheme and host.
func ValidURL(field, value string) Rule {
	return Rule{
		Check: func() bool {
			u, err := url.Parse(value)
			return err == nil && u.Scheme != "" && u.Host != ""
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must be a valid URL",
			TranslationKey: "validation.url",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidPhone builds a Rule asserting value looks like a phone number.
func ValidPhone(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return phonePattern.MatchString(value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must be a valid phone number",
			TranslationKey: "validation.phone",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidAlphanumeric builds a Rule asserting value is letters and digits only.
func ValidAlphanumeric(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return alphanumPattern.MatchString(value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must contain only letters and digits",
			TranslationKey: "validation.alphanum",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidAlpha builds a Rule asserting value is letters only.
func ValidAlpha(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return alphaPattern.MatchString(value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must contain only letters",
			TranslationKey: "validation.alpha",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidNumericString builds a Rule asserting value is digits only.
func ValidNumericString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return numericPattern.MatchString(value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must contain only digits",
			TranslationKey: "validation.numeric",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidUUID builds a Rule asserting value is a UUID of any version.
func ValidUUID(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return uuidPattern.MatchString(value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must be a valid UUID",
			TranslationKey: "validation.uuid",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidUUIDVersionString builds a Rule asserting value is a UUID of the given version (1-5).
func ValidUUIDVersionString(field, value string, version int) Rule {
	return Rule{
		Check: func() bool {
			if !uuidPattern.MatchString(value) {
				return false
			}
			want, ok := uuidVersionPrefix[version]
			if !ok {
				return false
			}
			return len(value) >= 15 && string(value[14]) == want
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be a valid UUIDv%d", version),
			TranslationKey: "validation.uuid_version",
			TranslationValues: map[string]any{
				"field":   field,
				"version": version,
			},
		},
	}
}

// InList builds a Rule asserting value is one of allowed.
func InList(field, value string, allowed []string) Rule {
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
			TranslationKey: "validation.in",
			TranslationValues: map[string]any{
				"field":   field,
				"allowed": allowed,
			},
		},
	}
}

// NotInList builds a Rule asserting value is none of disallowed.
func NotInList(field, value string, disallowed []string) Rule {
	return Rule{
		Check: func() bool {
			for _, d := range disallowed {
				if value == d {
					return false
				}
			}
			return true
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must not be one of: %s", strings.Join(disallowed, ", ")),
			TranslationKey: "validation.not_in",
			TranslationValues: map[string]any{
				"field":      field,
				"disallowed": disallowed,
			},
		},
	}
}

// MatchesRegex builds a Rule asserting value matches pattern. An invalid pattern always fails.
func MatchesRegex(field, value, pattern, description string) Rule {
	re, err := regexp.Compile(pattern)
	return Rule{
		Check: func() bool {
			if err != nil {
				return false
			}
			return re.MatchString(value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must match %s", description),
			TranslationKey: "validation.regex",
			TranslationValues: map[string]any{
				"field":   field,
				"pattern": pattern,
			},
		},
	}
}
