package crypto

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hasher is the field hash primitive the whole protocol is built on:
// commitments, Merkle nodes, nullifiers and the stand-in proof transcript
// all go through it. The hash is deterministic and order-sensitive.
//
// Implementations must be safe for concurrent use. Swapping MiMC for a
// Poseidon or Rescue permutation only requires a new Hasher; no caller
// changes.
type Hasher interface {
	// Hash absorbs the inputs in order and returns a single field element.
	Hash(inputs ...fr.Element) (fr.Element, error)
}

// MiMCHasher implements Hasher with the MiMC permutation over the BN254
// scalar field.
type MiMCHasher struct{}

// NewMiMCHasher returns the default protocol hash.
func NewMiMCHasher() MiMCHasher {
	return MiMCHasher{}
}

// Hash absorbs the inputs in order into a fresh MiMC state.
func (MiMCHasher) Hash(inputs ...fr.Element) (fr.Element, error) {
	h := mimc.NewMiMC()
	for i := range inputs {
		b := inputs[i].Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return fr.Element{}, fmt.Errorf("mimc absorb: %w", err)
		}
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out, nil
}
