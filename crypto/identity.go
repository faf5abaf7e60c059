package crypto

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Identity is a submitter's anonymous credential: a secret scalar and the
// one-way commitment to it. The commitment is the public leaf value in the
// group's membership tree; the secret never leaves the submitter's process
// and is deliberately not serializable.
type Identity struct {
	secret     fr.Element
	commitment fr.Element
}

// GenerateIdentity draws a fresh secret scalar from the system entropy
// source and computes commitment = H(secret). It fails only if the entropy
// source fails.
func GenerateIdentity(h Hasher) (*Identity, error) {
	secret, err := RandomFieldElement()
	if err != nil {
		return nil, err
	}

	commitment, err := h.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("commit to secret: %w", err)
	}

	return &Identity{secret: secret, commitment: commitment}, nil
}

// NewIdentityFromSecret rebuilds an identity from a previously generated
// secret, recomputing the commitment. Used to restore a submitter session.
func NewIdentityFromSecret(h Hasher, secret fr.Element) (*Identity, error) {
	commitment, err := h.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("commit to secret: %w", err)
	}
	return &Identity{secret: secret, commitment: commitment}, nil
}

// Secret returns the identity's secret scalar. Callers must not let the
// secret cross the submitter's trust boundary.
func (id *Identity) Secret() fr.Element {
	return id.secret
}

// Commitment returns the public commitment H(secret).
func (id *Identity) Commitment() fr.Element {
	return id.commitment
}

// String renders only the public commitment. The secret is never printed.
func (id *Identity) String() string {
	return fmt.Sprintf("identity(commitment=%s)", id.commitment.String())
}
