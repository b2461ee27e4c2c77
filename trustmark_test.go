package trustchain_test

import (
	"context"
	"testing"
	"time"

	trustchain "github.com/openfedgo/trustchain"
	"github.com/openfedgo/trustchain/core/fixture"
	"github.com/openfedgo/trustchain/core/statement"
	"github.com/stretchr/testify/require"
)

// TestResolver_TrustMarkVerifier is spec.md §8 scenario 6: a leaf's
// self-issued trust mark verifies once the leaf's own chain resolves to a
// configured trust anchor.
func TestResolver_TrustMarkVerifier(t *testing.T) {
	now := time.Now()
	fed := fixture.New(now)
	anchor := fed.AddEntity("https://anchor.example.org")
	leaf := fed.AddEntity("https://leaf.example.org", anchor.ID)
	leaf.Metadata[statement.EntityTypeOAuthClient] = statement.Metadata{"client_name": "leaf"}

	tm, err := statement.NewTrustMarkPayload(leaf.ID, "https://anchor.example.org/marks/certified", now, statement.NewTrustMarkPayloadOptions{
		Lifetime: time.Hour,
	})
	require.NoError(t, err)
	compact := fed.SignTrustMark(leaf.ID, tm)

	r, err := trustchain.New(trustchain.EngineConfig{TrustAnchors: anchorsOf(fed, anchor.ID)}, fed.GetFunc())
	require.NoError(t, err)

	verifier := r.TrustMarkVerifier(5 * time.Second)
	verified, err := verifier.Verify(context.Background(), compact)
	require.NoError(t, err)
	require.Equal(t, leaf.ID, verified.Issuer.String())
	require.Equal(t, "https://anchor.example.org/marks/certified", verified.ID)
}

// TestLoadEnvEngineConfig_Defaults confirms EnvEngineConfig fills in
// EngineConfig's documented defaults when no environment variables are set.
func TestLoadEnvEngineConfig_Defaults(t *testing.T) {
	env, err := trustchain.LoadEnvEngineConfig()
	require.NoError(t, err)

	cfg := env.ApplyTo(trustchain.EngineConfig{})
	require.Equal(t, 300*time.Second, cfg.AllowedDelta)
	require.Equal(t, 10, cfg.MaxChainDepth)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, time.Duration(0), cfg.Deadline)
}
