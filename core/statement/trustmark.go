package statement

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// TrustMark is a signed attestation by one entity that another has some
// named property (spec.md §3, GLOSSARY).
type TrustMark struct {
	Issuer     Identifier `json:"iss"`
	Subject    Identifier `json:"sub"`
	ID         string     `json:"id"`
	IssuedAt   int64      `json:"iat"`
	Expiration *int64     `json:"exp,omitempty"`
	LogoURI    string     `json:"logo_uri,omitempty"`
	Ref        string     `json:"ref,omitempty"`
}

// Expired reports whether the mark's exp, if present, is before now.
func (t *TrustMark) Expired(now time.Time) bool {
	if t.Expiration == nil {
		return false
	}
	return time.Unix(*t.Expiration, 0).Before(now)
}

// NewTrustMarkPayloadOptions configures NewTrustMarkPayload.
type NewTrustMarkPayloadOptions struct {
	Subject  string // defaults to issuer (self-issued) when empty
	Lifetime time.Duration
	LogoURI  string
	Ref      string
}

// NewTrustMarkPayload builds an unsigned TrustMark payload the way
// fedservice's create_trust_mark does (spec.md §12): callers that need to
// mint a mark — test fixtures standing in for a federation participant —
// use this instead of hand-assembling the struct.
func NewTrustMarkPayload(issuer, id string, issuedAt time.Time, opts NewTrustMarkPayloadOptions) (*TrustMark, error) {
	iss, err := NewIdentifier(issuer)
	if err != nil {
		return nil, err
	}
	sub := iss
	if opts.Subject != "" {
		sub, err = NewIdentifier(opts.Subject)
		if err != nil {
			return nil, err
		}
	}

	tm := &TrustMark{
		Issuer:   iss,
		Subject:  sub,
		ID:       id,
		IssuedAt: issuedAt.Unix(),
		LogoURI:  opts.LogoURI,
		Ref:      opts.Ref,
	}
	if opts.Lifetime > 0 {
		exp := issuedAt.Add(opts.Lifetime).Unix()
		tm.Expiration = &exp
	}
	return tm, nil
}

// UnverifiedTrustMarkPayload extracts the trust mark payload without
// verifying its signature, so callers can discover iss/kid to select a
// verification key.
func UnverifiedTrustMarkPayload(compact string) (*TrustMark, error) {
	jws, err := parseCompact(compact)
	if err != nil {
		return nil, err
	}
	var tm TrustMark
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &tm); err != nil {
		return nil, fmt.Errorf("statement: unmarshal unverified trust mark: %w", err)
	}
	return &tm, nil
}

// VerifyTrustMark verifies compact using an externally-supplied key (the
// KeyStore entry acquired by resolving the mark issuer's trust chain).
func VerifyTrustMark(compact string, key jose.JSONWebKey) (*TrustMark, error) {
	jws, err := parseCompact(compact)
	if err != nil {
		return nil, err
	}
	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("statement: trust mark signature verification failed: %w", err)
	}
	var tm TrustMark
	if err := json.Unmarshal(payload, &tm); err != nil {
		return nil, fmt.Errorf("statement: unmarshal verified trust mark: %w", err)
	}
	if tm.Issuer.IsZero() || tm.Subject.IsZero() || tm.ID == "" || tm.IssuedAt == 0 {
		return nil, fmt.Errorf("statement: trust mark missing required fields")
	}
	return &tm, nil
}
