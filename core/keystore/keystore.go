// Package keystore implements the federation KeyStore (spec.md §4.1): a
// per-issuer map of verification keys, seeded from configured trust anchors
// and grown additively as chains verify.
package keystore

import (
	"fmt"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/openfedgo/trustchain/core/statement"
)

// ErrUnknownIssuer is returned by KeysFor/VerifyKeyFor when no keys have
// been configured or acquired for the requested issuer.
type ErrUnknownIssuer struct {
	Issuer string
}

func (e *ErrUnknownIssuer) Error() string {
	return fmt.Sprintf("keystore: unknown issuer %q", e.Issuer)
}

type entry struct {
	mu   sync.Mutex // serializes writes (imports) for this issuer
	keys []jose.JSONWebKey
}

// Store maps issuer entity ids to their current verification keys. A
// store-wide RWMutex guards the issuer map; each issuer's key list is guarded
// by its own lock, which reads also take and which serializes writes for that
// issuer. Imports are idempotent (spec.md §5).
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	anchors map[string]struct{}
}

// New creates a KeyStore seeded with the given trust anchors. Anchor keys
// are immutable after construction; they are never grown from chain content.
func New(anchors []statement.TrustAnchor) *Store {
	s := &Store{
		entries: make(map[string]*entry, len(anchors)),
		anchors: make(map[string]struct{}, len(anchors)),
	}
	for _, a := range anchors {
		s.entries[a.ID.String()] = &entry{keys: append([]jose.JSONWebKey(nil), a.JWKS.Keys...)}
		s.anchors[a.ID.String()] = struct{}{}
	}
	return s
}

// IsAnchor reports whether issuer is a configured trust anchor.
func (s *Store) IsAnchor(issuer string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.anchors[issuer]
	return ok
}

// KeysFor returns the current key set for issuer.
func (s *Store) KeysFor(issuer string) ([]jose.JSONWebKey, error) {
	s.mu.RLock()
	e, ok := s.entries[issuer]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownIssuer{Issuer: issuer}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]jose.JSONWebKey(nil), e.keys...), nil
}

// VerifyKeyFor selects, from issuer's current key set, the key matching kid.
func (s *Store) VerifyKeyFor(issuer, kid string) (jose.JSONWebKey, error) {
	keys, err := s.KeysFor(issuer)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	for _, k := range keys {
		if k.KeyID == kid {
			return k, nil
		}
	}
	return jose.JSONWebKey{}, fmt.Errorf("keystore: no key with kid %q for issuer %q", kid, issuer)
}

// ImportJWKS additively merges newKeys into issuer's key set. A key already
// present (matching kty, use, and kid) is not duplicated. Anchor entries
// reject imports outright: anchor keys never come from chain content.
func (s *Store) ImportJWKS(issuer string, newKeys []jose.JSONWebKey) error {
	s.mu.RLock()
	_, isAnchor := s.anchors[issuer]
	s.mu.RUnlock()
	if isAnchor {
		return fmt.Errorf("keystore: refusing to import keys for trust anchor %q", issuer)
	}

	s.mu.Lock()
	e, ok := s.entries[issuer]
	if !ok {
		e = &entry{}
		s.entries[issuer] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, nk := range newKeys {
		if !containsKey(e.keys, nk) {
			e.keys = append(e.keys, nk)
		}
	}
	return nil
}

func containsKey(keys []jose.JSONWebKey, k jose.JSONWebKey) bool {
	for _, existing := range keys {
		if existing.KeyID == k.KeyID && existing.Use == k.Use && sameKty(existing, k) {
			return true
		}
	}
	return false
}

func sameKty(a, b jose.JSONWebKey) bool {
	ta, tb := a.Key, b.Key
	return fmt.Sprintf("%T", ta) == fmt.Sprintf("%T", tb)
}
