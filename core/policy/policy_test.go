package policy_test

import (
	"testing"

	"github.com/openfedgo/trustchain/core/policy"
	"github.com/openfedgo/trustchain/core/statement"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, s string) statement.Identifier {
	t.Helper()
	id, err := statement.NewIdentifier(s)
	require.NoError(t, err)
	return id
}

// TestEngine_ThreeLevelWithPolicy mirrors spec.md §8 scenario 3: an
// intermediate's metadata_policy adds a redirect URI on top of the leaf's
// own declared list, and the merged result is the union.
func TestEngine_ThreeLevelWithPolicy(t *testing.T) {
	anchor := &statement.EntityStatement{Issuer: mustID(t, "https://anchor.example.org"), Subject: mustID(t, "https://intermediate.example.org")}

	intermediate := &statement.EntityStatement{
		Issuer:  mustID(t, "https://intermediate.example.org"),
		Subject: mustID(t, "https://leaf.example.org"),
		MetadataPolicy: map[statement.EntityType]statement.PolicyOperators{
			statement.EntityTypeOAuthClient: {
				"redirect_uris": {"add": []any{"https://extra.example.org/cb"}},
			},
		},
	}

	leaf := &statement.EntityStatement{
		Issuer:  mustID(t, "https://leaf.example.org"),
		Subject: mustID(t, "https://leaf.example.org"),
		Metadata: map[statement.EntityType]statement.Metadata{
			statement.EntityTypeOAuthClient: {"redirect_uris": []any{"https://example.com/cb"}},
		},
	}

	eng := policy.New()
	effective, err := eng.EffectiveMetadata([]*statement.EntityStatement{anchor, intermediate, leaf}, statement.EntityTypeOAuthClient)
	require.NoError(t, err)

	uris, ok := effective["redirect_uris"].([]any)
	require.True(t, ok)
	require.Equal(t, []any{"https://extra.example.org/cb", "https://example.com/cb"}, uris)
}

func TestEngine_TwoLevel_NoPolicyPassesMetadataThrough(t *testing.T) {
	anchorAboutLeaf := &statement.EntityStatement{Issuer: mustID(t, "https://anchor.example.org"), Subject: mustID(t, "https://leaf.example.org")}
	leaf := &statement.EntityStatement{
		Issuer:  mustID(t, "https://leaf.example.org"),
		Subject: mustID(t, "https://leaf.example.org"),
		Metadata: map[statement.EntityType]statement.Metadata{
			statement.EntityTypeOAuthClient: {"client_name": "leaf"},
		},
	}

	eng := policy.New()
	effective, err := eng.EffectiveMetadata([]*statement.EntityStatement{anchorAboutLeaf, leaf}, statement.EntityTypeOAuthClient)
	require.NoError(t, err)
	require.Equal(t, "leaf", effective["client_name"])
}

func TestEngine_ConflictingValueOperatorsViolatePolicy(t *testing.T) {
	intermediate1 := &statement.EntityStatement{
		Issuer: mustID(t, "https://anchor.example.org"), Subject: mustID(t, "https://leaf.example.org"),
		MetadataPolicy: map[statement.EntityType]statement.PolicyOperators{
			statement.EntityTypeOAuthClient: {"client_name": {"value": "A"}},
		},
	}
	leaf := &statement.EntityStatement{
		Issuer: mustID(t, "https://leaf.example.org"), Subject: mustID(t, "https://leaf.example.org"),
		Metadata: map[statement.EntityType]statement.Metadata{
			statement.EntityTypeOAuthClient: {"client_name": "B"},
		},
	}

	eng := policy.New()
	_, err := eng.EffectiveMetadata([]*statement.EntityStatement{intermediate1, leaf}, statement.EntityTypeOAuthClient)
	require.Error(t, err)
	var violation *policy.ErrPolicyViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "client_name", violation.Claim)
}

func TestEngine_EssentialClaimMissingViolatesPolicy(t *testing.T) {
	intermediate := &statement.EntityStatement{
		Issuer: mustID(t, "https://anchor.example.org"), Subject: mustID(t, "https://leaf.example.org"),
		MetadataPolicy: map[statement.EntityType]statement.PolicyOperators{
			statement.EntityTypeOAuthClient: {"client_name": {"essential": true}},
		},
	}
	leaf := &statement.EntityStatement{
		Issuer: mustID(t, "https://leaf.example.org"), Subject: mustID(t, "https://leaf.example.org"),
	}

	eng := policy.New()
	_, err := eng.EffectiveMetadata([]*statement.EntityStatement{intermediate, leaf}, statement.EntityTypeOAuthClient)
	require.Error(t, err)
	var violation *policy.ErrPolicyViolation
	require.ErrorAs(t, err, &violation)
}

func TestEngine_OneOfRejectsValueOutsideSet(t *testing.T) {
	intermediate := &statement.EntityStatement{
		Issuer: mustID(t, "https://anchor.example.org"), Subject: mustID(t, "https://leaf.example.org"),
		MetadataPolicy: map[statement.EntityType]statement.PolicyOperators{
			statement.EntityTypeOAuthClient: {"token_endpoint_auth_method": {"one_of": []any{"private_key_jwt", "none"}}},
		},
	}
	leaf := &statement.EntityStatement{
		Issuer: mustID(t, "https://leaf.example.org"), Subject: mustID(t, "https://leaf.example.org"),
		Metadata: map[statement.EntityType]statement.Metadata{
			statement.EntityTypeOAuthClient: {"token_endpoint_auth_method": "client_secret_basic"},
		},
	}

	eng := policy.New()
	_, err := eng.EffectiveMetadata([]*statement.EntityStatement{intermediate, leaf}, statement.EntityTypeOAuthClient)
	require.Error(t, err)
}

func TestEngine_DefaultAppliedWhenAbsent(t *testing.T) {
	intermediate := &statement.EntityStatement{
		Issuer: mustID(t, "https://anchor.example.org"), Subject: mustID(t, "https://leaf.example.org"),
		MetadataPolicy: map[statement.EntityType]statement.PolicyOperators{
			statement.EntityTypeOAuthClient: {"response_types": {"default": []any{"code"}}},
		},
	}
	leaf := &statement.EntityStatement{
		Issuer: mustID(t, "https://leaf.example.org"), Subject: mustID(t, "https://leaf.example.org"),
	}

	eng := policy.New()
	effective, err := eng.EffectiveMetadata([]*statement.EntityStatement{intermediate, leaf}, statement.EntityTypeOAuthClient)
	require.NoError(t, err)
	require.Equal(t, []any{"code"}, effective["response_types"])
}
