// Package fixture builds small in-memory federations for tests: a set of
// signed entities wired together with authority_hints and a GetFunc that
// serves their well-known/fetch/list endpoints without a real network
// (spec.md §9's capability-injection design note; §10.7).
package fixture

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/openfedgo/trustchain/core/fetcher"
	"github.com/openfedgo/trustchain/core/statement"
)

// Entity is one federation participant in a Federation fixture.
type Entity struct {
	ID  string
	key *rsa.PrivateKey
	kid string

	AuthorityHints []string
	Metadata       map[statement.EntityType]statement.Metadata
	MetadataPolicy map[statement.EntityType]statement.PolicyOperators
	Lifetime       time.Duration

	// SubordinatePolicy overrides MetadataPolicy for the statement this
	// entity issues about a specific subordinate, keyed by subordinate id.
	SubordinatePolicy map[string]map[statement.EntityType]statement.PolicyOperators
}

// PolicyFor returns e's metadata_policy for the statement it issues about
// subordinateID: the per-subordinate override if set, else e.MetadataPolicy.
func (e *Entity) PolicyFor(subordinateID string) map[statement.EntityType]statement.PolicyOperators {
	if p, ok := e.SubordinatePolicy[subordinateID]; ok {
		return p
	}
	return e.MetadataPolicy
}

// JWK returns e's public key as a jose.JSONWebKey.
func (e *Entity) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{Key: &e.key.PublicKey, KeyID: e.kid, Algorithm: string(jose.RS256), Use: "sig"}
}

// Federation is a small in-memory federation: a set of entities, each
// reachable over a stub GetFunc at its well-known/fetch/list endpoints.
type Federation struct {
	entities map[string]*Entity
	now      time.Time
}

// New builds an empty Federation. now anchors every entity's iat/exp.
func New(now time.Time) *Federation {
	return &Federation{entities: make(map[string]*Entity), now: now}
}

// AddEntity registers a new entity with a freshly generated key pair.
func (f *Federation) AddEntity(id string, authorityHints ...string) *Entity {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("fixture: generate key for %q: %v", id, err))
	}
	e := &Entity{
		ID:             id,
		key:            key,
		kid:            id + "#key",
		AuthorityHints: authorityHints,
		Metadata:       map[statement.EntityType]statement.Metadata{},
		MetadataPolicy: map[statement.EntityType]statement.PolicyOperators{},
		Lifetime:       time.Hour,
	}
	f.entities[id] = e
	return e
}

// Entity returns the registered entity, or nil.
func (f *Federation) Entity(id string) *Entity { return f.entities[id] }

// TrustAnchor returns id's (entity-id, jwks) pair for engine configuration.
func (f *Federation) TrustAnchor(id string) statement.TrustAnchor {
	e := f.entities[id]
	ident, err := statement.NewIdentifier(id)
	if err != nil {
		panic(err)
	}
	return statement.TrustAnchor{ID: ident, JWKS: jose.JSONWebKeySet{Keys: []jose.JSONWebKey{e.JWK()}}}
}

func (f *Federation) identifier(id string) statement.Identifier {
	ident, err := statement.NewIdentifier(id)
	if err != nil {
		panic(err)
	}
	return ident
}

func (f *Federation) sign(e *Entity, payload statement.EntityStatement) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       &jose.JSONWebKey{Key: e.key, KeyID: e.kid, Algorithm: string(jose.RS256), Use: "sig"},
	}, (&jose.SignerOptions{}).WithHeader("kid", e.kid))
	if err != nil {
		panic(err)
	}
	jws, err := signer.Sign(raw)
	if err != nil {
		panic(err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		panic(err)
	}
	return compact
}

// SignTrustMark signs tm with issuerID's key, the way that entity's
// federation_trust_mark_endpoint would when issuing a mark about itself or
// a subordinate.
func (f *Federation) SignTrustMark(issuerID string, tm *statement.TrustMark) string {
	e, ok := f.entities[issuerID]
	if !ok {
		panic(fmt.Sprintf("fixture: unknown entity %q", issuerID))
	}
	raw, err := json.Marshal(tm)
	if err != nil {
		panic(err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       &jose.JSONWebKey{Key: e.key, KeyID: e.kid, Algorithm: string(jose.RS256), Use: "sig"},
	}, (&jose.SignerOptions{}).WithHeader("kid", e.kid))
	if err != nil {
		panic(err)
	}
	jws, err := signer.Sign(raw)
	if err != nil {
		panic(err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		panic(err)
	}
	return compact
}

// selfConfiguration builds e's self-signed Entity Configuration.
func (f *Federation) selfConfiguration(e *Entity) string {
	hints := make([]statement.Identifier, len(e.AuthorityHints))
	for i, h := range e.AuthorityHints {
		hints[i] = f.identifier(h)
	}

	metadata := e.Metadata
	if _, ok := metadata[statement.EntityTypeFederationEntity]; !ok {
		metadata = map[statement.EntityType]statement.Metadata{}
		for k, v := range e.Metadata {
			metadata[k] = v
		}
		metadata[statement.EntityTypeFederationEntity] = statement.Metadata{
			"federation_fetch_endpoint": f.fetchEndpoint(e.ID),
			"federation_list_endpoint":  f.listEndpoint(e.ID),
			"federation_status_endpoint": f.statusEndpoint(e.ID),
		}
	}

	return f.sign(e, statement.EntityStatement{
		Issuer:         f.identifier(e.ID),
		Subject:        f.identifier(e.ID),
		IssuedAt:       f.now.Unix(),
		Expiration:     f.now.Add(e.Lifetime).Unix(),
		AuthorityHints: hints,
		Metadata:       metadata,
		MetadataPolicy: e.MetadataPolicy,
	})
}

// statementAbout builds superior's signed statement about subordinate,
// carrying subordinate's public key forward.
func (f *Federation) statementAbout(superior, subordinate *Entity, policy map[statement.EntityType]statement.PolicyOperators) string {
	return f.sign(superior, statement.EntityStatement{
		Issuer:         f.identifier(superior.ID),
		Subject:        f.identifier(subordinate.ID),
		IssuedAt:       f.now.Unix(),
		Expiration:     f.now.Add(superior.Lifetime).Unix(),
		JWKS:           &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{subordinate.JWK()}},
		MetadataPolicy: policy,
	})
}

func (f *Federation) fetchEndpoint(id string) string  { return id + "/fetch" }
func (f *Federation) listEndpoint(id string) string    { return id + "/list" }
func (f *Federation) statusEndpoint(id string) string  { return id + "/status" }

// GetFunc returns a fetcher.GetFunc that serves every registered entity's
// well-known/fetch/list endpoints from this Federation's in-memory state.
func (f *Federation) GetFunc() fetcher.GetFunc {
	return func(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (int, []byte, string, error) {
		for id, e := range f.entities {
			wellKnown := strings.TrimRight(id, "/") + "/.well-known/openid-federation"
			switch {
			case rawURL == wellKnown:
				return http.StatusOK, []byte(f.selfConfiguration(e)), "application/entity-statement+jwt", nil
			case strings.HasPrefix(rawURL, f.fetchEndpoint(id)):
				return f.serveFetch(id, rawURL)
			case strings.HasPrefix(rawURL, f.listEndpoint(id)):
				return f.serveList(id)
			}
		}
		return http.StatusNotFound, nil, "", nil
	}
}

func (f *Federation) serveFetch(authorityID, rawURL string) (int, []byte, string, error) {
	idx := strings.Index(rawURL, "?")
	if idx < 0 {
		return http.StatusBadRequest, nil, "", nil
	}
	query := rawURL[idx+1:]
	params := map[string]string{}
	for _, kv := range strings.Split(query, "&") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := url.QueryUnescape(parts[1])
		if err != nil {
			return http.StatusBadRequest, nil, "", nil
		}
		params[parts[0]] = v
	}

	sub := params["sub"]
	if sub == "" || sub == authorityID {
		e := f.entities[authorityID]
		return http.StatusOK, []byte(f.selfConfiguration(e)), "application/entity-statement+jwt", nil
	}

	authority := f.entities[authorityID]
	subordinate := f.entities[sub]
	if authority == nil || subordinate == nil {
		return http.StatusBadRequest, nil, "", nil
	}
	return http.StatusOK, []byte(f.statementAbout(authority, subordinate, authority.PolicyFor(sub))), "application/entity-statement+jwt", nil
}

func (f *Federation) serveList(authorityID string) (int, []byte, string, error) {
	var subs []string
	for id, e := range f.entities {
		for _, h := range e.AuthorityHints {
			if h == authorityID {
				subs = append(subs, id)
			}
		}
	}
	body, err := json.Marshal(subs)
	if err != nil {
		return http.StatusInternalServerError, nil, "", err
	}
	return http.StatusOK, body, "application/json", nil
}
