package crypto

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"
)

// Commitments, nullifiers and Merkle nodes are all elements of the BN254
// scalar field. Arithmetic on fr.Element is always reduced modulo the field
// order, so there is no path through which native integer overflow can leak
// into a protocol value.

// ErrEntropyUnavailable indicates the system entropy source failed while
// drawing a random scalar.
var ErrEntropyUnavailable = errors.New("crypto: entropy source unavailable")

// FieldModulus returns the order of the scalar field as a big integer.
func FieldModulus() *big.Int {
	return fr.Modulus()
}

// RandomFieldElement draws a cryptographically secure random element of the
// scalar field, uniformly distributed below the field modulus.
func RandomFieldElement() (fr.Element, error) {
	var el fr.Element
	if _, err := el.SetRandom(); err != nil {
		return fr.Element{}, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return el, nil
}

// FieldElementFromBytes interprets data as a big-endian integer and reduces
// it into the scalar field.
func FieldElementFromBytes(data []byte) fr.Element {
	var el fr.Element
	el.SetBytes(data)
	return el
}

// FieldElementFromString parses a decimal string into a field element.
func FieldElementFromString(s string) (fr.Element, error) {
	var el fr.Element
	if _, err := el.SetString(s); err != nil {
		return fr.Element{}, fmt.Errorf("invalid field element %q: %w", s, err)
	}
	return el, nil
}

// HashToField maps arbitrary bytes into the scalar field by hashing with
// SHA3-256 and reducing the digest. Used to bind an opaque report payload
// to a proof as its signal hash.
func HashToField(data []byte) fr.Element {
	digest := sha3.Sum256(data)
	var el fr.Element
	el.SetBytes(digest[:])
	return el
}
