// Package federation provides the Container capability struct that collapses
// the source's "superior_get"/"upstream_get" naming (spec.md §9, §13.3) into
// one explicit, non-reflective handle.
package federation

import (
	"github.com/openfedgo/trustchain/core/fetcher"
	"github.com/openfedgo/trustchain/core/keystore"
	"github.com/openfedgo/trustchain/core/statement"
)

// Container exposes the capabilities a federation component needs from its
// surrounding engine: the shared KeyStore, the configured trust anchors, and
// the HTTP GET capability, through explicit accessors rather than a dynamic
// attribute lookup. Component constructors take the KeyStore and GetFunc as
// plain arguments; the root Resolver builds a Container and hands its
// KeyStore() and HTTPClient() to trustmark.New.
type Container struct {
	keyStore *keystore.Store
	anchors  []statement.TrustAnchor
	get      fetcher.GetFunc
}

// New builds a Container around the given KeyStore, anchors, and GetFunc.
func New(keyStore *keystore.Store, anchors []statement.TrustAnchor, get fetcher.GetFunc) *Container {
	return &Container{keyStore: keyStore, anchors: anchors, get: get}
}

// KeyStore returns the shared KeyStore.
func (c *Container) KeyStore() *keystore.Store {
	return c.keyStore
}

// Anchors returns the configured trust anchors.
func (c *Container) Anchors() []statement.TrustAnchor {
	return c.anchors
}

// HTTPClient returns the injected HTTP GET capability.
func (c *Container) HTTPClient() fetcher.GetFunc {
	return c.get
}
