package statement

import (
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/openfedgo/trustchain/core/validator"
)

// kidInput routes JWS kid-header validation through the shared kid tag
// rule instead of a bare emptiness check.
type kidInput struct {
	Value string `validate:"kid"`
}

// AllowedAlgorithms lists the JWS signature algorithms this engine accepts,
// per spec.md §6 ("implementations MUST support RS256 and ES256").
var AllowedAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.ES256}

// parseCompact parses a compact JWS, validating the single-signature shape
// every federation object uses, without verifying the signature.
func parseCompact(compact string) (*jose.JSONWebSignature, error) {
	jws, err := jose.ParseSigned(compact, AllowedAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("statement: parse JWS: %w", err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("statement: expected exactly one JWS signature, got %d", len(jws.Signatures))
	}
	return jws, nil
}

// KeyID returns the kid header of the (sole) JWS signature, without verifying it.
func KeyID(compact string) (string, error) {
	jws, err := parseCompact(compact)
	if err != nil {
		return "", err
	}
	kid := jws.Signatures[0].Header.KeyID
	if err := validator.ValidateStruct(&kidInput{Value: kid}); err != nil {
		return "", fmt.Errorf("statement: JWS header has invalid kid: %w", err)
	}
	return kid, nil
}

// UnverifiedPayload returns the JWS payload without verifying its signature.
// Callers use this only to extract routing information (iss, jwks) needed to
// select a verification key; the returned EntityStatement MUST NOT be
// treated as trusted.
func UnverifiedPayload(compact string) (*EntityStatement, error) {
	jws, err := parseCompact(compact)
	if err != nil {
		return nil, err
	}
	var s EntityStatement
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &s); err != nil {
		return nil, fmt.Errorf("statement: unmarshal unverified payload: %w", err)
	}
	return &s, nil
}

// ParseEntityConfiguration verifies a self-signed Entity Configuration using
// its own declared jwks — the only case where a statement's verification
// key legitimately comes from inside its own payload.
func ParseEntityConfiguration(compact string) (*EntityStatement, error) {
	jws, err := parseCompact(compact)
	if err != nil {
		return nil, err
	}

	kid := jws.Signatures[0].Header.KeyID
	if err := validator.ValidateStruct(&kidInput{Value: kid}); err != nil {
		return nil, fmt.Errorf("statement: entity configuration JWS header has invalid kid: %w", err)
	}

	var untrusted EntityStatement
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &untrusted); err != nil {
		return nil, fmt.Errorf("statement: unmarshal untrusted entity configuration: %w", err)
	}
	if !untrusted.IsSelfSigned() {
		return nil, fmt.Errorf("statement: entity configuration must have iss == sub")
	}
	if untrusted.JWKS == nil {
		return nil, fmt.Errorf("statement: entity configuration has no jwks")
	}

	candidates := untrusted.JWKS.Key(kid)
	if len(candidates) != 1 {
		return nil, fmt.Errorf("statement: expected exactly one key matching kid %q, found %d", kid, len(candidates))
	}

	payload, err := jws.Verify(candidates[0])
	if err != nil {
		return nil, fmt.Errorf("statement: signature verification failed: %w", err)
	}

	var trusted EntityStatement
	if err := json.Unmarshal(payload, &trusted); err != nil {
		return nil, fmt.Errorf("statement: unmarshal verified entity configuration: %w", err)
	}
	return &trusted, nil
}

// VerifyEntityStatement verifies compact using an externally-supplied key
// (from the KeyStore entry for the statement's claimed issuer — the chain
// verifier never trusts a jwks embedded in the statement it is itself
// verifying).
func VerifyEntityStatement(compact string, key jose.JSONWebKey) (*EntityStatement, error) {
	jws, err := parseCompact(compact)
	if err != nil {
		return nil, err
	}
	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("statement: signature verification failed: %w", err)
	}
	var s EntityStatement
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("statement: unmarshal verified entity statement: %w", err)
	}
	return &s, nil
}
