package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// Encryption error taxonomy. Primitive-level failures are collapsed into
// these sentinels at the codec boundary so that callers (and attackers
// observing responses) cannot distinguish failure causes.
var (
	// ErrInvalidRecipientKey indicates the recipient public key failed to
	// import as a P-256 point.
	ErrInvalidRecipientKey = errors.New("crypto: invalid recipient key")

	// ErrEncryptionFailure indicates a crypto-primitive failure while
	// encrypting. The cause is deliberately not exposed.
	ErrEncryptionFailure = errors.New("crypto: encryption failure")

	// ErrDecryptionFailure indicates the envelope could not be decrypted:
	// wrong key, tampered ciphertext, or corrupted tag. Deliberately generic
	// to avoid oracle leakage.
	ErrDecryptionFailure = errors.New("crypto: decryption failure")
)

// NonceSize is the AES-GCM nonce length in bytes. A fresh nonce is drawn
// for every message and must never repeat under the same derived key.
const NonceSize = 12

// hkdfInfo domain-separates the AEAD key derivation from other uses of the
// shared secret.
var hkdfInfo = []byte("veilpost-ecies-v1")

// EncryptedEnvelope contains an ECIES-encrypted report payload.
//
// One fresh ephemeral key pair is generated per message, so compromising a
// recipient's long-term key later does not reveal the ephemeral secrets used
// for past envelopes.
type EncryptedEnvelope struct {
	// Ciphertext is the AES-256-GCM output including the auth tag.
	Ciphertext []byte `json:"ciphertext"`

	// EphemeralPublicKey is the uncompressed P-256 ephemeral public key.
	EphemeralPublicKey []byte `json:"ephemeralPublicKey"`

	// IV is the 12-byte AES-GCM nonce.
	IV []byte `json:"iv"`
}

// ParseRecipientKey imports an uncompressed P-256 public key, validating the
// curve point. Returns ErrInvalidRecipientKey on any malformed input.
func ParseRecipientKey(data []byte) (*ecdh.PublicKey, error) {
	pub, err := ecdh.P256().NewPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipientKey, err)
	}
	return pub, nil
}

// Encrypt encrypts plaintext to a recipient's ECDH public key using ECIES.
// Uses ephemeral ECDH key agreement and AES-256-GCM for authenticated
// encryption, with the ephemeral public key bound as additional data.
func Encrypt(recipientPubKey *ecdh.PublicKey, plaintext []byte) (*EncryptedEnvelope, error) {
	if recipientPubKey == nil {
		return nil, ErrInvalidRecipientKey
	}

	ephemeralPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key", ErrEncryptionFailure)
	}

	sharedSecret, err := ephemeralPriv.ECDH(recipientPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement", ErrEncryptionFailure)
	}

	gcm, err := newAEAD(sharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: cipher setup", ErrEncryptionFailure)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce", ErrEncryptionFailure)
	}

	ephemeralPub := ephemeralPriv.PublicKey().Bytes()
	ciphertext := gcm.Seal(nil, nonce, plaintext, ephemeralPub)

	return &EncryptedEnvelope{
		Ciphertext:         ciphertext,
		EphemeralPublicKey: ephemeralPub,
		IV:                 nonce,
	}, nil
}

// EncryptTo is Encrypt for a serialized recipient key. The key is validated
// before any ephemeral material is generated.
func EncryptTo(recipientKey []byte, plaintext []byte) (*EncryptedEnvelope, error) {
	pub, err := ParseRecipientKey(recipientKey)
	if err != nil {
		return nil, err
	}
	return Encrypt(pub, plaintext)
}

// Decrypt decrypts an envelope using the recipient's private key. The
// returned plaintext is the exact byte sequence passed to Encrypt.
func Decrypt(recipientPrivKey *ecdh.PrivateKey, env *EncryptedEnvelope) ([]byte, error) {
	if recipientPrivKey == nil || env == nil {
		return nil, ErrDecryptionFailure
	}

	ephemeralPub, err := ecdh.P256().NewPublicKey(env.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key", ErrDecryptionFailure)
	}

	sharedSecret, err := recipientPrivKey.ECDH(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement", ErrDecryptionFailure)
	}

	gcm, err := newAEAD(sharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: cipher setup", ErrDecryptionFailure)
	}

	if len(env.IV) != NonceSize {
		return nil, fmt.Errorf("%w: nonce size", ErrDecryptionFailure)
	}

	plaintext, err := gcm.Open(nil, env.IV, env.Ciphertext, env.EphemeralPublicKey)
	if err != nil {
		return nil, ErrDecryptionFailure
	}

	return plaintext, nil
}

// newAEAD derives the symmetric key from the ECDH shared secret with
// HKDF-SHA3-256 and builds the AES-256-GCM cipher.
func newAEAD(sharedSecret []byte) (cipher.AEAD, error) {
	kdf := hkdf.New(sha3.New256, sharedSecret, nil, hkdfInfo)
	key := make([]byte, 32)
	if _, err := kdf.Read(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
