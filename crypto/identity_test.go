package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIdentityCommitment(t *testing.T) {
	h := NewMiMCHasher()

	identity, err := GenerateIdentity(h)
	require.NoError(t, err)

	expected, err := h.Hash(identity.Secret())
	require.NoError(t, err)
	commitment := identity.Commitment()
	assert.True(t, expected.Equal(&commitment), "commitment must equal H(secret)")
}

func TestGenerateIdentityUnique(t *testing.T) {
	h := NewMiMCHasher()

	a, err := GenerateIdentity(h)
	require.NoError(t, err)
	b, err := GenerateIdentity(h)
	require.NoError(t, err)

	aSecret, bSecret := a.Secret(), b.Secret()
	assert.False(t, aSecret.Equal(&bSecret))
	aCommitment, bCommitment := a.Commitment(), b.Commitment()
	assert.False(t, aCommitment.Equal(&bCommitment))
}

func TestIdentityFromSecretRestoresCommitment(t *testing.T) {
	h := NewMiMCHasher()

	original, err := GenerateIdentity(h)
	require.NoError(t, err)

	restored, err := NewIdentityFromSecret(h, original.Secret())
	require.NoError(t, err)

	origCommitment, restoredCommitment := original.Commitment(), restored.Commitment()
	assert.True(t, origCommitment.Equal(&restoredCommitment))
}

func TestIdentityStringRedactsSecret(t *testing.T) {
	h := NewMiMCHasher()

	identity, err := GenerateIdentity(h)
	require.NoError(t, err)

	secret := identity.Secret()
	assert.False(t, strings.Contains(identity.String(), secret.String()),
		"String() must not leak the secret")
}
