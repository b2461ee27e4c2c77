// Package verifier implements the federation ChainVerifier (spec.md §4.4):
// given one candidate chain ordered anchor→leaf, verify every signature in
// order, propagate subordinate keys downward into the KeyStore, enforce
// expiry, and emit a VerifiedChain or reject it.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/openfedgo/trustchain/core/keystore"
	"github.com/openfedgo/trustchain/core/logger"
	"github.com/openfedgo/trustchain/core/statement"
)

// ErrUntrustedAnchor is returned when a chain's first statement's issuer is
// not a configured trust anchor.
type ErrUntrustedAnchor struct {
	Issuer string
}

func (e *ErrUntrustedAnchor) Error() string {
	return fmt.Sprintf("verifier: %q is not a configured trust anchor", e.Issuer)
}

// ErrSignatureInvalid is spec.md's SignatureInvalid(i).
type ErrSignatureInvalid struct {
	Index int
	Cause error
}

func (e *ErrSignatureInvalid) Error() string {
	return fmt.Sprintf("verifier: signature invalid at chain position %d: %v", e.Index, e.Cause)
}
func (e *ErrSignatureInvalid) Unwrap() error { return e.Cause }

// ErrExpired is spec.md's Expired(i).
type ErrExpired struct {
	Index int
	Exp   time.Time
}

func (e *ErrExpired) Error() string {
	return fmt.Sprintf("verifier: statement at position %d expired at %s", e.Index, e.Exp)
}

// ErrNotYetValid is spec.md's NotYetValid(i).
type ErrNotYetValid struct {
	Index int
	Iat   time.Time
}

func (e *ErrNotYetValid) Error() string {
	return fmt.Sprintf("verifier: statement at position %d not valid until %s", e.Index, e.Iat)
}

// ErrMissingSigningJWKS is spec.md's MissingSigningJWKS(i).
type ErrMissingSigningJWKS struct {
	Index int
}

func (e *ErrMissingSigningJWKS) Error() string {
	return fmt.Sprintf("verifier: statement at position %d is a non-leaf link with no jwks", e.Index)
}

// ErrMalformedChain covers the Open Question decision in SPEC_FULL.md §13.1:
// a chain whose first statement is self-signed (iss == sub) is rejected
// except for the single-element direct-anchor case. It also reports a chain
// whose statements do not link: a statement's issuer differs from the
// previous statement's subject.
type ErrMalformedChain struct {
	Reason string
}

func (e *ErrMalformedChain) Error() string {
	return fmt.Sprintf("verifier: malformed chain: %s", e.Reason)
}

// VerifiedChain is a candidate chain whose signatures, linkage, and expiry
// have all been confirmed (spec.md §3).
type VerifiedChain struct {
	Anchor        string
	IssPath       []string // leaf -> anchor
	Exp           time.Time
	VerifiedChain []*statement.EntityStatement // anchor -> leaf, same order as input
}

// FetchConfigurationFunc retrieves an entity's self-signed Entity
// Configuration compact JWS, the way fetcher.StatementFetcher.FetchConfiguration
// does.
type FetchConfigurationFunc func(ctx context.Context, entityID string) (string, error)

// Verifier verifies candidate chains against a KeyStore.
type Verifier struct {
	keyStore    *keystore.Store
	delta       time.Duration
	now         func() time.Time
	log         *slog.Logger
	fetchConfig FetchConfigurationFunc
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the verifier's notion of "now", for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.log = l
		}
	}
}

// WithFetchConfiguration enables the UnknownIssuer recovery path (spec.md
// §7): when a key lookup fails because the issuer's keys have not been
// imported yet, fetch the issuer's own Entity Configuration once, import
// its jwks, and retry the lookup before giving up.
func WithFetchConfiguration(fn FetchConfigurationFunc) Option {
	return func(v *Verifier) { v.fetchConfig = fn }
}

// New creates a Verifier. delta is the accepted clock-skew tolerance
// (spec.md §6, default 300s is the caller's responsibility to configure).
func New(keyStore *keystore.Store, delta time.Duration, opts ...Option) *Verifier {
	v := &Verifier{
		keyStore: keyStore,
		delta:    delta,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks one candidate chain, a list of compact JWS strings ordered
// anchor->leaf, and returns the VerifiedChain or the first rejection reason.
func (v *Verifier) Verify(ctx context.Context, compactChain []string) (*VerifiedChain, error) {
	n := len(compactChain)
	if n == 0 {
		return nil, &ErrMalformedChain{Reason: "empty chain"}
	}

	first, err := statement.UnverifiedPayload(compactChain[0])
	if err != nil {
		return nil, &ErrSignatureInvalid{Index: 0, Cause: err}
	}
	if !v.keyStore.IsAnchor(first.Issuer.String()) {
		return nil, &ErrUntrustedAnchor{Issuer: first.Issuer.String()}
	}
	if first.IsSelfSigned() && n > 1 {
		return nil, &ErrMalformedChain{Reason: "anchor self-configuration must not be prepended to a multi-element chain"}
	}

	now := v.now()
	verified := make([]*statement.EntityStatement, 0, n)

	for i, compact := range compactChain {
		unverified, err := statement.UnverifiedPayload(compact)
		if err != nil {
			return nil, &ErrSignatureInvalid{Index: i, Cause: err}
		}

		kid, err := statement.KeyID(compact)
		if err != nil {
			return nil, &ErrSignatureInvalid{Index: i, Cause: err}
		}

		key, err := v.keyStore.VerifyKeyFor(unverified.Issuer.String(), kid)
		if err != nil {
			if v.fetchConfig == nil {
				return nil, &ErrSignatureInvalid{Index: i, Cause: err}
			}
			key, err = v.retryKeyLookup(ctx, unverified.Issuer.String(), kid, err)
			if err != nil {
				return nil, &ErrSignatureInvalid{Index: i, Cause: err}
			}
		}

		s, err := statement.VerifyEntityStatement(compact, key)
		if err != nil {
			return nil, &ErrSignatureInvalid{Index: i, Cause: err}
		}
		if i > 0 && s.Issuer.String() != verified[i-1].Subject.String() {
			return nil, &ErrMalformedChain{Reason: fmt.Sprintf("statement %d is issued by %q, not by %q, the subject of statement %d", i, s.Issuer, verified[i-1].Subject, i-1)}
		}

		if now.Before(s.IssuedAtTime().Add(-v.delta)) {
			return nil, &ErrNotYetValid{Index: i, Iat: s.IssuedAtTime()}
		}
		if now.After(s.ExpiresAt().Add(v.delta)) {
			return nil, &ErrExpired{Index: i, Exp: s.ExpiresAt()}
		}

		if i < n-1 {
			if s.JWKS == nil || len(s.JWKS.Keys) == 0 {
				return nil, &ErrMissingSigningJWKS{Index: i}
			}
			if err := v.keyStore.ImportJWKS(s.Subject.String(), s.JWKS.Keys); err != nil {
				return nil, fmt.Errorf("verifier: import keys for %q: %w", s.Subject, err)
			}
			v.log.Debug("imported subordinate keys", logger.Subject(s.Subject.String()), logger.Count("key_count", len(s.JWKS.Keys)))
		}

		verified = append(verified, s)
	}

	exp := verified[0].ExpiresAt()
	for _, s := range verified[1:] {
		if s.ExpiresAt().Before(exp) {
			exp = s.ExpiresAt()
		}
	}

	// Every statement's Issuer is the entity one step closer to the anchor
	// than its Subject, and the leaf's self-signed statement has
	// Issuer == Subject == leaf, so reversing the Issuer sequence alone
	// yields iss_path leaf->anchor without special-casing the leaf.
	issPath := make([]string, n)
	for i, s := range verified {
		issPath[n-1-i] = s.Issuer.String()
	}

	vc := &VerifiedChain{
		Anchor:        verified[0].Issuer.String(),
		IssPath:       issPath,
		Exp:           exp,
		VerifiedChain: verified,
	}
	v.log.Debug("chain verified", logger.Anchor(vc.Anchor), logger.ChainLen(len(verified)))
	return vc, nil
}

// retryKeyLookup implements spec.md §7's UnknownIssuer recovery: fetch
// issuer once more, import whatever keys its Entity Configuration declares,
// and retry the lookup. Any failure along the way propagates the original
// lookup error rather than a confusing fetch-internal one.
func (v *Verifier) retryKeyLookup(ctx context.Context, issuer, kid string, cause error) (jose.JSONWebKey, error) {
	compact, err := v.fetchConfig(ctx, issuer)
	if err != nil {
		return jose.JSONWebKey{}, cause
	}
	cfg, err := statement.ParseEntityConfiguration(compact)
	if err != nil {
		return jose.JSONWebKey{}, cause
	}
	if cfg.JWKS != nil {
		_ = v.keyStore.ImportJWKS(issuer, cfg.JWKS.Keys)
	}
	key, err := v.keyStore.VerifyKeyFor(issuer, kid)
	if err != nil {
		return jose.JSONWebKey{}, cause
	}
	v.log.Debug("recovered unknown issuer via fetch-and-retry", logger.Issuer(issuer))
	return key, nil
}
