package statement_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/openfedgo/trustchain/core/statement"
	"github.com/stretchr/testify/require"
)

func signCompact(t *testing.T, key *rsa.PrivateKey, kid string, payload any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       &jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"},
	}, (&jose.SignerOptions{}).WithHeader("kid", kid))
	require.NoError(t, err)

	jws, err := signer.Sign(raw)
	require.NoError(t, err)

	compact, err := jws.CompactSerialize()
	require.NoError(t, err)
	return compact
}

func TestNewIdentifier(t *testing.T) {
	_, err := statement.NewIdentifier("https://example.com/entity")
	require.NoError(t, err)

	_, err = statement.NewIdentifier("http://example.com/entity")
	require.Error(t, err, "non-https must be rejected")

	_, err = statement.NewIdentifier("https://example.com/entity#frag")
	require.Error(t, err, "fragment must be rejected")

	_, err = statement.NewIdentifier("https://example.com/entity?x=1")
	require.Error(t, err, "query must be rejected")
}

func TestParseEntityConfiguration_RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss, err := statement.NewIdentifier("https://leaf.example.org")
	require.NoError(t, err)

	now := time.Now()
	payload := statement.EntityStatement{
		Issuer:     iss,
		Subject:    iss,
		IssuedAt:   now.Unix(),
		Expiration: now.Add(time.Hour).Unix(),
		JWKS: &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
			{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(jose.RS256), Use: "sig"},
		}},
	}

	compact := signCompact(t, key, "k1", payload)

	parsed, err := statement.ParseEntityConfiguration(compact)
	require.NoError(t, err)
	require.True(t, parsed.IsSelfSigned())
	require.Equal(t, iss.String(), parsed.Issuer.String())
}

func TestParseEntityConfiguration_RejectsTamperedSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss, err := statement.NewIdentifier("https://leaf.example.org")
	require.NoError(t, err)

	now := time.Now()
	payload := statement.EntityStatement{
		Issuer:     iss,
		Subject:    iss,
		IssuedAt:   now.Unix(),
		Expiration: now.Add(time.Hour).Unix(),
		JWKS: &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
			{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(jose.RS256), Use: "sig"},
		}},
	}
	compact := signCompact(t, key, "k1", payload)

	tampered := compact[:len(compact)-2] + "xx"

	_, err = statement.ParseEntityConfiguration(tampered)
	require.Error(t, err)
}

func TestEntityStatement_ValidAt(t *testing.T) {
	now := time.Now()
	s := statement.EntityStatement{
		IssuedAt:   now.Add(-time.Minute).Unix(),
		Expiration: now.Add(time.Minute).Unix(),
	}
	require.True(t, s.ValidAt(now, 0))
	require.False(t, s.ValidAt(now.Add(time.Hour), 0))
	require.True(t, s.ValidAt(now.Add(time.Hour), 2*time.Hour))
}

func TestFederationEntityMetadata_Decode(t *testing.T) {
	s := statement.EntityStatement{
		Metadata: map[statement.EntityType]statement.Metadata{
			statement.EntityTypeFederationEntity: {
				"federation_fetch_endpoint": "https://anchor.example.org/fetch",
			},
		},
	}
	fem, err := s.FederationEntityMetadata()
	require.NoError(t, err)
	require.Equal(t, "https://anchor.example.org/fetch", fem.FetchEndpoint)
}

func TestTrustMark_RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubKey := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(jose.RS256), Use: "sig"}

	payload, err := statement.NewTrustMarkPayload(
		"https://issuer.example.org", "https://marks.example.org/assured",
		time.Now(), statement.NewTrustMarkPayloadOptions{Subject: "https://leaf.example.org"})
	require.NoError(t, err)

	compact := signCompact(t, key, "k1", payload)

	verified, err := statement.VerifyTrustMark(compact, pubKey)
	require.NoError(t, err)
	require.Equal(t, "https://marks.example.org/assured", verified.ID)
	require.False(t, verified.Expired(time.Now()))
}
