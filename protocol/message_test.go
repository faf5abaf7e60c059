package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilpost/veilpost/crypto"
)

type testPayload struct {
	Category string `json:"category"`
	Details  string `json:"details"`
}

func TestSerializeDecodeRoundTrip(t *testing.T) {
	payload := &testPayload{Category: "fraud", Details: "details"}

	data, err := SerializeMessage(payload)
	require.NoError(t, err)

	decoded, err := DecodeMessage[testPayload](bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestSignedRecover(t *testing.T) {
	pubkey, privkey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	payload := &testPayload{Category: "fraud"}
	signed, err := NewSigned(privkey, payload)
	require.NoError(t, err)

	obj, signer, err := signed.Recover()
	require.NoError(t, err)
	assert.Equal(t, payload, obj)
	assert.True(t, signer.Equal(pubkey))
}

func TestSignedRecoverRejectsTamper(t *testing.T) {
	_, privkey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privkey, &testPayload{Category: "fraud"})
	require.NoError(t, err)

	signed.Object.Category = "spam"
	_, _, err = signed.Recover()
	assert.Error(t, err)
}

func TestSignedRecoverRejectsKeySubstitution(t *testing.T) {
	_, privkey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privkey, &testPayload{Category: "fraud"})
	require.NoError(t, err)

	// Swapping in another public key must break the signature even though
	// the object is untouched.
	signed.PublicKey = otherPub
	_, _, err = signed.Recover()
	assert.Error(t, err)
}
