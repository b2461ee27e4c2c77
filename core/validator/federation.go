package validator

import (
	"net/url"
	"reflect"
)

// Custom validators for federation entity identifiers and key material,
// registered alongside the generic tag validators. core/statement routes
// Identifier and JWS kid-header validation through these via
// `validate:"https_url"` and `validate:"kid"` struct tags instead of
// one-off parsing checks.
func init() {
	RegisterValidator("https_url", httpsURLValidator)
	RegisterValidator("kid", kidValidator)
}

// httpsURLValidator enforces the entity identifier shape required by OpenID Federation:
// an absolute https URL with no fragment and no query component.
func httpsURLValidator(field string, value reflect.Value, params []string) Rule {
	if value.Kind() != reflect.String {
		return Rule{Check: func() bool { return true }}
	}
	raw := value.String()
	return Rule{
		Check: func() bool {
			u, err := url.Parse(raw)
			if err != nil {
				return false
			}
			return u.Scheme == "https" && u.Host != "" && u.Fragment == "" && u.RawQuery == ""
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must be an https URL with no fragment or query",
			TranslationKey: "validation.https_url",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// kidValidator enforces the non-empty, whitespace-free key id shape used to select
// a signing key out of a JWK Set.
func kidValidator(field string, value reflect.Value, params []string) Rule {
	if value.Kind() != reflect.String {
		return Rule{Check: func() bool { return true }}
	}
	return MatchesRegex(field, value.String(), `^[^\s]+$`, "a non-empty key id with no whitespace")
}
