// Package trustmark implements the TrustMarkVerifier (spec.md §4.7): parse
// and validate a signed trust mark, resolve its issuer's trust chain to
// acquire verification keys, verify the mark's signature, and optionally
// consult a status endpoint.
package trustmark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/openfedgo/trustchain/core/fetcher"
	"github.com/openfedgo/trustchain/core/keystore"
	"github.com/openfedgo/trustchain/core/statement"
)

// ErrMarkChainTooLong is the SPEC_FULL.md §12 supplement: a trust mark that
// is not self-signed (sub != iss) must resolve to a chain no longer than
// issuer-self + trust-anchor (length <= 2).
type ErrMarkChainTooLong struct {
	Issuer string
	Length int
}

func (e *ErrMarkChainTooLong) Error() string {
	return fmt.Sprintf("trustmark: issuer %q resolves to a chain of length %d, exceeding the non-self-signed mark bound of 2", e.Issuer, e.Length)
}

// ErrInvalidMark covers required-field and expiry validation failures.
type ErrInvalidMark struct {
	Reason string
}

func (e *ErrInvalidMark) Error() string {
	return fmt.Sprintf("trustmark: invalid mark: %s", e.Reason)
}

// ErrMarkNotActive is returned by CheckStatus when the status endpoint
// reports the mark as no longer active.
type ErrMarkNotActive struct {
	Issuer string
}

func (e *ErrMarkNotActive) Error() string {
	return fmt.Sprintf("trustmark: status endpoint reports mark from %q as not active", e.Issuer)
}

// ChainResolver is the capability TrustMarkVerifier needs from the
// TrustChainResolver (spec.md §4.6): resolve entityID's trust chain,
// populating the shared KeyStore with its current keys as a side effect,
// and report the resolved chain's length for the ErrMarkChainTooLong check.
type ChainResolver interface {
	ResolveChainLength(ctx context.Context, entityID string) (int, error)
}

// Verifier verifies signed trust marks against a federation.
type Verifier struct {
	resolver ChainResolver
	keyStore *keystore.Store
	get      fetcher.GetFunc
	timeout  time.Duration
}

// New creates a TrustMarkVerifier.
func New(resolver ChainResolver, keyStore *keystore.Store, get fetcher.GetFunc, timeout time.Duration) *Verifier {
	return &Verifier{resolver: resolver, keyStore: keyStore, get: get, timeout: timeout}
}

// Verify parses compact, resolves the mark issuer's trust chain, and
// verifies the mark's signature against the issuer's keys. On any failure
// it returns a nil mark and an error; the caller treats absence as "mark
// not accepted" (spec.md §4.7).
func (v *Verifier) Verify(ctx context.Context, compact string) (*statement.TrustMark, error) {
	unverified, err := statement.UnverifiedTrustMarkPayload(compact)
	if err != nil {
		return nil, fmt.Errorf("trustmark: parse: %w", err)
	}
	if unverified.Issuer.IsZero() || unverified.Subject.IsZero() || unverified.ID == "" || unverified.IssuedAt == 0 {
		return nil, &ErrInvalidMark{Reason: "missing required field (iss, sub, id, or iat)"}
	}
	if unverified.Expired(time.Now()) {
		return nil, &ErrInvalidMark{Reason: "mark has expired"}
	}

	chainLen, err := v.resolver.ResolveChainLength(ctx, unverified.Issuer.String())
	if err != nil {
		return nil, fmt.Errorf("trustmark: resolve issuer chain: %w", err)
	}

	selfSigned := unverified.Issuer.Equal(unverified.Subject)
	if !selfSigned && chainLen > 2 {
		return nil, &ErrMarkChainTooLong{Issuer: unverified.Issuer.String(), Length: chainLen}
	}

	kid, err := statement.KeyID(compact)
	if err != nil {
		return nil, fmt.Errorf("trustmark: %w", err)
	}
	key, err := v.keyStore.VerifyKeyFor(unverified.Issuer.String(), kid)
	if err != nil {
		return nil, fmt.Errorf("trustmark: no verification key for issuer %q: %w", unverified.Issuer, err)
	}

	mark, err := statement.VerifyTrustMark(compact, key)
	if err != nil {
		return nil, fmt.Errorf("trustmark: signature verification failed: %w", err)
	}
	return mark, nil
}

// statusResponse is the federation_status_endpoint's JSON body (spec.md §6).
type statusResponse struct {
	Active bool `json:"active"`
}

// CheckStatus issues a trust-mark status query to statusEndpoint (spec.md
// §4.7.4, §12): when compact is non-empty, the query carries the mark's
// compact JWS (?trust_mark={jws}); otherwise it is built from mark's Subject,
// ID and IssuedAt (?sub=&id=&iat=).
func (v *Verifier) CheckStatus(ctx context.Context, statusEndpoint string, mark *statement.TrustMark, compact string) error {
	q := url.Values{}
	if compact != "" {
		q.Set("trust_mark", compact)
	} else {
		q.Set("sub", mark.Subject.String())
		q.Set("id", mark.ID)
		q.Set("iat", fmt.Sprintf("%d", mark.IssuedAt))
	}

	u := statusEndpoint
	if len(q) > 0 {
		if containsQuery(u) {
			u += "&" + q.Encode()
		} else {
			u += "?" + q.Encode()
		}
	}

	status, body, _, err := v.get(ctx, u, v.timeout, nil)
	if err != nil {
		return fmt.Errorf("trustmark: status check request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("trustmark: status endpoint returned HTTP %d", status)
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("trustmark: malformed status response: %w", err)
	}
	if !resp.Active {
		return &ErrMarkNotActive{Issuer: mark.Issuer.String()}
	}
	return nil
}

func containsQuery(u string) bool {
	for _, c := range u {
		if c == '?' {
			return true
		}
	}
	return false
}
