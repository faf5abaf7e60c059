// Package merkle implements the binary hash tree over identity commitments
// that backs group membership proofs.
//
// The tree is owned by the group registry; submitters and intake servers only
// ever see roots and inclusion proofs. All nodes are BN254 scalar field
// elements hashed with the protocol's field hash.
package merkle

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/veilpost/veilpost/crypto"
)

var (
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
	ErrInvalidProof    = errors.New("merkle: invalid proof shape")
)

// zeroElement pads leaf sets and missing siblings. Using the field zero keeps
// the root deterministic for any leaf count.
var zeroElement fr.Element

// Proof is a membership path from a leaf to the root.
type Proof struct {
	// Root is the tree root the path folds up to.
	Root fr.Element

	// PathElements holds the sibling node at each level, leaf to root.
	// Its length always equals the tree depth.
	PathElements []fr.Element

	// PathIndices records, per level, whether the running node was the left
	// (0) or right (1) child.
	PathIndices []int
}

// Tree is a padded binary hash tree. Level 0 holds the leaves padded with the
// zero element up to a power of two; each subsequent level halves until a
// single root remains.
type Tree struct {
	hasher    crypto.Hasher
	levels    [][]fr.Element
	leafCount int
}

// New builds a tree over the given leaves. Empty input is padded to two zero
// leaves, so even an empty group has a well-defined H(0,0) root.
func New(h crypto.Hasher, leaves []fr.Element) (*Tree, error) {
	padded := padToPowerOfTwo(leaves)

	levels := [][]fr.Element{padded}
	for len(levels[len(levels)-1]) > 1 {
		prev := levels[len(levels)-1]
		next := make([]fr.Element, len(prev)/2)
		for i := range next {
			parent, err := h.Hash(prev[2*i], prev[2*i+1])
			if err != nil {
				return nil, fmt.Errorf("hash level %d: %w", len(levels), err)
			}
			next[i] = parent
		}
		levels = append(levels, next)
	}

	return &Tree{hasher: h, levels: levels, leafCount: len(leaves)}, nil
}

// Root returns the tree root.
func (t *Tree) Root() fr.Element {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Depth returns the number of levels above the leaves.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// LeafCount returns the number of leaves the tree was built from, before
// padding.
func (t *Tree) LeafCount() int {
	return t.leafCount
}

// Leaf returns the leaf value at the given index.
func (t *Tree) Leaf(index int) (fr.Element, error) {
	if index < 0 || index >= t.leafCount {
		return fr.Element{}, ErrIndexOutOfRange
	}
	return t.levels[0][index], nil
}

// Prove walks from the leaf at index to the root, collecting the sibling at
// each level. A sibling past the end of a level is the zero element; every
// proof therefore has exactly Depth path elements.
func (t *Tree) Prove(index int) (*Proof, error) {
	if index < 0 || index >= t.leafCount {
		return nil, ErrIndexOutOfRange
	}

	depth := t.Depth()
	proof := &Proof{
		Root:         t.Root(),
		PathElements: make([]fr.Element, depth),
		PathIndices:  make([]int, depth),
	}

	pos := index
	for level := 0; level < depth; level++ {
		nodes := t.levels[level]
		sibling := pos ^ 1
		if sibling < len(nodes) {
			proof.PathElements[level] = nodes[sibling]
		} else {
			proof.PathElements[level] = zeroElement
		}
		proof.PathIndices[level] = pos & 1
		pos /= 2
	}

	return proof, nil
}

// VerifyProof folds the path back up from the leaf and compares the result
// against the proof's root. It is O(depth) and needs no tree access.
func VerifyProof(h crypto.Hasher, leaf fr.Element, proof *Proof) (bool, error) {
	if proof == nil || len(proof.PathElements) != len(proof.PathIndices) {
		return false, ErrInvalidProof
	}

	node := leaf
	for level, sibling := range proof.PathElements {
		var (
			parent fr.Element
			err    error
		)
		switch proof.PathIndices[level] {
		case 0:
			parent, err = h.Hash(node, sibling)
		case 1:
			parent, err = h.Hash(sibling, node)
		default:
			return false, fmt.Errorf("%w: path index %d at level %d", ErrInvalidProof, proof.PathIndices[level], level)
		}
		if err != nil {
			return false, fmt.Errorf("hash level %d: %w", level, err)
		}
		node = parent
	}

	return node.Equal(&proof.Root), nil
}

// padToPowerOfTwo copies leaves into a slice whose length is the next power
// of two, at least two, padded with the zero element.
func padToPowerOfTwo(leaves []fr.Element) []fr.Element {
	size := 2
	if len(leaves) > 2 {
		size = 1 << bits.Len(uint(len(leaves)-1))
	}

	padded := make([]fr.Element, size)
	copy(padded, leaves)
	return padded
}
