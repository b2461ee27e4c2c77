// Package trustchain is the client/relying-party side of an OpenID
// Connect/OAuth2 federation: discovering and verifying a chain of signed
// entity statements down to a configured trust anchor, applying metadata
// policy along the way, and verifying trust marks against the result.
//
// A typical caller builds an EngineConfig with one or more trust anchors,
// constructs a Resolver with New, and calls Resolve for each entity it
// needs to look up. The Resolver is safe for concurrent use; its KeyStore
// and caches are shared across calls.
package trustchain
