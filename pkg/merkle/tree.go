// Copyright 2025 Justifai
//
// Package merkle implements the two-level Merkle commitment scheme:
// sorted-pair keccak256 hashing, so that proof siblings carry no
// left/right position flag. This is adapted from a duplicate-last-leaf,
// position-tagged binary tree (the shape the teacher's validator uses
// for its own anchor batching) generalized to sorted-pair hashing,
// which the QR payload format depends on to keep proofs small.
package merkle

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"sync"

	"github.com/justifai/certify/pkg/errkind"
	"github.com/justifai/certify/pkg/hashkernel"
)

// Leaf is a 32-byte Merkle leaf value.
type Leaf = [hashkernel.HashSize]byte

// Proof is an ordered sequence of 32-byte siblings with no position
// flag: verification always sorts the running hash against the next
// sibling before hashing, so the path is reproducible regardless of
// which side of each pair the proven leaf started on.
type Proof [][hashkernel.HashSize]byte

// Tree is a built, sorted-pair Merkle tree over a fixed leaf set.
type Tree struct {
	mu     sync.RWMutex
	leaves []Leaf
	levels [][]Leaf
	root   Leaf
}

// Node computes the sorted-pair internal node hash:
// keccak256(min(a,b) || max(a,b)).
func Node(a, b Leaf) Leaf {
	lo, hi := a, b
	if bytes.Compare(a[:], b[:]) > 0 {
		lo, hi = b, a
	}
	buf := make([]byte, 0, 2*hashkernel.HashSize)
	buf = append(buf, lo[:]...)
	buf = append(buf, hi[:]...)
	return hashkernel.H(buf)
}

// Build constructs a tree from leaves in the given order. Order is
// load-bearing: callers must supply leaves in ascending creation order
// so the resulting proofs are reproducible across independent builds
// of the same logical batch.
func Build(leaves []Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errkind.New(errkind.Merkle, "cannot build a tree from zero leaves")
	}

	t := &Tree{leaves: append([]Leaf(nil), leaves...)}
	level := append([]Leaf(nil), leaves...)
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		next := make([]Leaf, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, Node(level[i], level[i+1]))
			} else {
				// Odd count: duplicate the last leaf.
				next = append(next, Node(level[i], level[i]))
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}

	t.root = level[0]
	return t, nil
}

// BuildUltimate constructs the cross-batch (ultimate) tree across a set
// of intermediate roots (MRIs), forcing a 2-leaf construction with a
// padding leaf keccak256(MRI) when there is exactly one batch — per
// spec, a single-batch ultimate tree must still produce a non-empty
// proof.
func BuildUltimate(mris []Leaf) (*Tree, error) {
	if len(mris) == 0 {
		return nil, errkind.New(errkind.Merkle, "cannot build an ultimate tree from zero roots")
	}
	if len(mris) == 1 {
		padding := hashkernel.H(mris[0][:])
		return Build([]Leaf{mris[0], padding})
	}
	return Build(mris)
}

// Root returns the tree's Merkle root.
func (t *Tree) Root() Leaf {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaves)
}

// Proof generates the inclusion proof for the leaf at leafIndex.
func (t *Tree) Proof(leafIndex int) (Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if leafIndex < 0 || leafIndex >= len(t.leaves) {
		return nil, errkind.New(errkind.Merkle, "leaf index out of range")
	}

	// Single-leaf tree: root equals the leaf, proof is empty.
	if len(t.leaves) == 1 {
		return Proof{}, nil
	}

	proof := make(Proof, 0, len(t.levels)-1)
	idx := leafIndex
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		var sibling Leaf
		if idx%2 == 0 {
			if idx+1 < len(nodes) {
				sibling = nodes[idx+1]
			} else {
				sibling = nodes[idx] // odd tail, duplicated
			}
		} else {
			sibling = nodes[idx-1]
		}
		proof = append(proof, sibling)
		idx /= 2
	}
	return proof, nil
}

// ProofForLeaf finds a leaf by value and returns its inclusion proof.
func (t *Tree) ProofForLeaf(leaf Leaf) (Proof, error) {
	t.mu.RLock()
	idx := -1
	for i, l := range t.leaves {
		if l == leaf {
			idx = i
			break
		}
	}
	t.mu.RUnlock()
	if idx == -1 {
		return nil, errkind.New(errkind.Merkle, "leaf not found in tree")
	}
	return t.Proof(idx)
}

// Verify recomputes the root from leaf and proof, sorting the running
// hash against each sibling in turn, and compares it to expectedRoot
// using a constant-time comparison. An empty proof is valid only when
// leaf already equals expectedRoot (the single-leaf/MRI==MRU case).
func Verify(leaf Leaf, proof Proof, expectedRoot Leaf) bool {
	if len(proof) == 0 {
		return subtle.ConstantTimeCompare(leaf[:], expectedRoot[:]) == 1
	}
	current := leaf
	for _, sibling := range proof {
		current = Node(current, sibling)
	}
	return subtle.ConstantTimeCompare(current[:], expectedRoot[:]) == 1
}

// HexSlice renders a Proof as lowercase hex strings, the form the
// verification bundle and QR payload store.
func (p Proof) HexSlice() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = hex.EncodeToString(s[:])
	}
	return out
}

// ProofFromHex parses a slice of hex sibling strings back into a Proof.
func ProofFromHex(hexes []string) (Proof, error) {
	out := make(Proof, len(hexes))
	for i, h := range hexes {
		leaf, err := hashkernel.DecodeHash(h)
		if err != nil {
			return nil, errkind.Wrap(errkind.Merkle, err, "decode proof sibling")
		}
		out[i] = leaf
	}
	return out, nil
}
