package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyPair(t *testing.T) (*ecdh.PrivateKey, *ecdh.PublicKey) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, priv.PublicKey()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv, pub := newTestKeyPair(t)

	messages := [][]byte{
		[]byte("hello"),
		[]byte(""),
		[]byte(`{"category":"fraud","details":"long structured payload"}`),
		make([]byte, 4096),
	}
	for _, msg := range messages {
		env, err := Encrypt(pub, msg)
		require.NoError(t, err)

		plaintext, err := Decrypt(priv, env)
		require.NoError(t, err)
		assert.Equal(t, msg, plaintext)
	}
}

func TestEncryptFreshEphemeralPerMessage(t *testing.T) {
	_, pub := newTestKeyPair(t)

	first, err := Encrypt(pub, []byte("msg"))
	require.NoError(t, err)
	second, err := Encrypt(pub, []byte("msg"))
	require.NoError(t, err)

	assert.NotEqual(t, first.EphemeralPublicKey, second.EphemeralPublicKey,
		"each message must use a fresh ephemeral key")
	assert.NotEqual(t, first.IV, second.IV, "nonces must not repeat")
	assert.Len(t, first.IV, NonceSize)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	priv, pub := newTestKeyPair(t)

	env, err := Encrypt(pub, []byte("sensitive report"))
	require.NoError(t, err)

	for i := range env.Ciphertext {
		tampered := &EncryptedEnvelope{
			Ciphertext:         append([]byte(nil), env.Ciphertext...),
			EphemeralPublicKey: env.EphemeralPublicKey,
			IV:                 env.IV,
		}
		tampered.Ciphertext[i] ^= 0x01

		_, err := Decrypt(priv, tampered)
		require.ErrorIs(t, err, ErrDecryptionFailure, "flipped byte %d must not decrypt", i)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	_, pub := newTestKeyPair(t)
	otherPriv, _ := newTestKeyPair(t)

	env, err := Encrypt(pub, []byte("sensitive report"))
	require.NoError(t, err)

	_, err = Decrypt(otherPriv, env)
	assert.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestEncryptToRejectsMalformedKey(t *testing.T) {
	_, err := EncryptTo([]byte("not-a-key"), []byte("msg"))
	assert.ErrorIs(t, err, ErrInvalidRecipientKey)

	_, err = EncryptTo(nil, []byte("msg"))
	assert.ErrorIs(t, err, ErrInvalidRecipientKey)

	_, err = Encrypt(nil, []byte("msg"))
	assert.ErrorIs(t, err, ErrInvalidRecipientKey)
}

func TestEnvelopeWireShape(t *testing.T) {
	_, pub := newTestKeyPair(t)

	env, err := Encrypt(pub, []byte("msg"))
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var wire map[string]string
	require.NoError(t, json.Unmarshal(data, &wire))
	require.Contains(t, wire, "ciphertext")
	require.Contains(t, wire, "ephemeralPublicKey")
	require.Contains(t, wire, "iv")

	// All three fields are base64 on the wire.
	for key, value := range wire {
		_, err := base64.StdEncoding.DecodeString(value)
		assert.NoError(t, err, "field %s must be base64", key)
	}

	var decoded EncryptedEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env.Ciphertext, decoded.Ciphertext)
	assert.Equal(t, env.IV, decoded.IV)
}
