package services

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
)

func TestHTTPClientGroupRoundTrip(t *testing.T) {
	registry, hasher := newTestRegistry(t)
	mux := chi.NewRouter()
	registry.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	client := NewHTTPClient(srv.URL)

	_, signingKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	first, err := crypto.GenerateIdentity(hasher)
	require.NoError(t, err)
	second, err := crypto.GenerateIdentity(hasher)
	require.NoError(t, err)

	index, err := client.JoinGroup(ctx, signingKey, first.Commitment())
	require.NoError(t, err)
	assert.Equal(t, 0, index)

	// Joining again with the same commitment conflicts.
	_, err = client.JoinGroup(ctx, signingKey, first.Commitment())
	assert.Error(t, err)

	index, err = client.JoinGroup(ctx, signingKey, second.Commitment())
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	root, err := client.CurrentMerkleRoot(ctx)
	require.NoError(t, err)
	registryRoot := registry.CurrentMerkleRoot()
	assert.True(t, root.Equal(&registryRoot))

	proof, err := client.ProveMembership(ctx, second.Commitment())
	require.NoError(t, err)
	ok, err := merkle.VerifyProof(hasher, second.Commitment(), proof)
	require.NoError(t, err)
	assert.True(t, ok)
}
