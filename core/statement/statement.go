package statement

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// PolicyOperators is one entity type's metadata_policy block: claim name to
// its operator mapping (value/add/default/one_of/subset_of/superset_of/essential).
type PolicyOperators map[string]map[string]any

// Metadata is one entity type's declared metadata: claim name to value.
type Metadata map[string]any

// EntityStatement is the unit of trust assertion (spec.md §3): a signed
// statement one entity makes about another, or about itself when
// Issuer == Subject (an Entity Configuration).
type EntityStatement struct {
	Issuer         Identifier                  `json:"iss"`
	Subject        Identifier                  `json:"sub"`
	IssuedAt       int64                       `json:"iat"`
	Expiration     int64                       `json:"exp"`
	JWKS           *jose.JSONWebKeySet         `json:"jwks,omitempty"`
	AuthorityHints []Identifier                `json:"authority_hints,omitempty"`
	Metadata       map[EntityType]Metadata     `json:"metadata,omitempty"`
	MetadataPolicy map[EntityType]PolicyOperators `json:"metadata_policy,omitempty"`
	TrustMarks     []string                    `json:"trust_marks,omitempty"`
	Constraints    *Constraints                `json:"constraints,omitempty"`
}

// Constraints bounds how far a chain may extend below the statement that
// carries it (not exercised by the resolve path beyond parsing — present for
// forward-compatible round-tripping of real federation statements).
type Constraints struct {
	MaxPathLength *int `json:"max_path_length,omitempty"`
}

// IsSelfSigned reports whether this is an Entity Configuration: iss == sub.
func (s *EntityStatement) IsSelfSigned() bool {
	return s.Issuer.Equal(s.Subject)
}

// ExpiresAt returns the statement's expiration as a time.Time.
func (s *EntityStatement) ExpiresAt() time.Time {
	return time.Unix(s.Expiration, 0)
}

// IssuedAtTime returns the statement's issuance time as a time.Time.
func (s *EntityStatement) IssuedAtTime() time.Time {
	return time.Unix(s.IssuedAt, 0)
}

// ValidAt reports whether now falls within [iat-delta, exp+delta].
func (s *EntityStatement) ValidAt(now time.Time, delta time.Duration) bool {
	notBefore := s.IssuedAtTime().Add(-delta)
	notAfter := s.ExpiresAt().Add(delta)
	return !now.Before(notBefore) && !now.After(notAfter)
}

// FederationEntityMetadata decodes the federation_entity metadata block, if present.
func (s *EntityStatement) FederationEntityMetadata() (*FederationEntityMetadata, error) {
	raw, ok := s.Metadata[EntityTypeFederationEntity]
	if !ok {
		return nil, fmt.Errorf("statement: no federation_entity metadata for %s", s.Subject)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("statement: re-marshal federation_entity metadata: %w", err)
	}
	var fem FederationEntityMetadata
	if err := json.Unmarshal(b, &fem); err != nil {
		return nil, fmt.Errorf("statement: decode federation_entity metadata: %w", err)
	}
	return &fem, nil
}

// MetadataFor decodes the metadata block for entityType into dst.
func (s *EntityStatement) MetadataFor(entityType EntityType, dst any) error {
	raw, ok := s.Metadata[entityType]
	if !ok {
		return fmt.Errorf("statement: no metadata for entity type %s", entityType)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("statement: re-marshal metadata for %s: %w", entityType, err)
	}
	return json.Unmarshal(b, dst)
}

// TrustAnchor is a configured (entity id, jwks) root of trust (spec.md §3).
// Anchor keys are never sourced from chain content.
type TrustAnchor struct {
	ID   Identifier
	JWKS jose.JSONWebKeySet
}
