// Package statement models the OpenID Federation wire types — entity
// identifiers, entity statements/configurations, trust anchors, and trust
// marks — along with the two-pass JWS verification these signed objects
// require.
package statement

import (
	"encoding/json"
	"fmt"

	"github.com/openfedgo/trustchain/core/validator"
)

// Identifier is an entity id: an HTTPS URL with no fragment and no query,
// per the GLOSSARY's "identified by an HTTPS URL".
type Identifier struct {
	raw string
}

// identifierInput routes entity id validation through the shared
// https_url tag rule instead of a one-off url.Parse check.
type identifierInput struct {
	Value string `validate:"https_url"`
}

// NewIdentifier validates and wraps an entity id string.
func NewIdentifier(id string) (Identifier, error) {
	if err := validator.ValidateStruct(&identifierInput{Value: id}); err != nil {
		return Identifier{}, fmt.Errorf("statement: invalid entity identifier %q: %w", id, err)
	}
	return Identifier{raw: id}, nil
}

// String returns the identifier's URL form.
func (i Identifier) String() string {
	return i.raw
}

// Equal reports whether two identifiers denote the same entity.
func (i Identifier) Equal(other Identifier) bool {
	return i.raw == other.raw
}

// IsZero reports whether i is the zero Identifier.
func (i Identifier) IsZero() bool {
	return i.raw == ""
}

func (i Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.raw)
}

func (i *Identifier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*i = Identifier{}
		return nil
	}
	id, err := NewIdentifier(s)
	if err != nil {
		return err
	}
	*i = id
	return nil
}
