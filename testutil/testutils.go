package testutil

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
	"github.com/veilpost/veilpost/protocol"
)

// NewIdentity generates a fresh identity, failing the test on error.
func NewIdentity(t *testing.T, h crypto.Hasher) *crypto.Identity {
	t.Helper()
	identity, err := crypto.GenerateIdentity(h)
	require.NoError(t, err)
	return identity
}

// NewGroup generates n identities and builds the membership tree over their
// commitments. The returned identities are in leaf order.
func NewGroup(t *testing.T, h crypto.Hasher, n int) ([]*crypto.Identity, *merkle.Tree) {
	t.Helper()

	identities := make([]*crypto.Identity, n)
	leaves := make([]fr.Element, n)
	for i := range identities {
		identities[i] = NewIdentity(t, h)
		leaves[i] = identities[i].Commitment()
	}

	tree, err := merkle.New(h, leaves)
	require.NoError(t, err)
	return identities, tree
}

// NewRecipientKeyPair generates a P-256 key pair for envelope encryption.
func NewRecipientKeyPair(t *testing.T) (*ecdh.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, priv.PublicKey().Bytes()
}

// BuildSubmission assembles a valid submission for the identity at the given
// leaf index.
func BuildSubmission(t *testing.T, h crypto.Hasher, cfg *protocol.Config,
	identity *crypto.Identity, tree *merkle.Tree, leafIndex int,
	epoch protocol.Epoch, recipientKey, payload []byte) *protocol.Submission {
	t.Helper()

	membership, err := tree.Prove(leafIndex)
	require.NoError(t, err)

	nullifier, err := protocol.DeriveNullifier(h, identity.Secret(), epoch)
	require.NoError(t, err)

	prover := protocol.NewHashProver(h, cfg)
	envelope, err := prover.Prove(membership, epoch, nullifier, crypto.HashToField(payload))
	require.NoError(t, err)

	encrypted, err := crypto.EncryptTo(recipientKey, payload)
	require.NoError(t, err)

	return &protocol.Submission{EncryptedData: encrypted, Proof: envelope}
}
