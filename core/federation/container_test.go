package federation_test

import (
	"context"
	"testing"
	"time"

	"github.com/openfedgo/trustchain/core/federation"
	"github.com/openfedgo/trustchain/core/fetcher"
	"github.com/openfedgo/trustchain/core/keystore"
	"github.com/stretchr/testify/require"
)

func TestContainer_ExposesCapabilities(t *testing.T) {
	ks := keystore.New(nil)
	get := fetcher.GetFunc(func(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (int, []byte, string, error) {
		return 200, nil, "", nil
	})

	c := federation.New(ks, nil, get)

	require.Same(t, ks, c.KeyStore())
	require.NotNil(t, c.HTTPClient())
	require.Empty(t, c.Anchors())
}
