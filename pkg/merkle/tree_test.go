// Copyright 2025 Justifai
package merkle

import (
	"testing"

	"github.com/justifai/certify/pkg/hashkernel"
)

func leafOf(s string) Leaf {
	return hashkernel.H([]byte(s))
}

func TestSingleLeafTreeRootIsLeaf(t *testing.T) {
	leaf := leafOf("a")
	tree, err := Build([]Leaf{leaf})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Root() != leaf {
		t.Fatalf("single-leaf root must equal the leaf")
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(proof) != 0 {
		t.Fatalf("expected empty proof for single-leaf tree, got %d entries", len(proof))
	}
	if !Verify(leaf, proof, tree.Root()) {
		t.Fatalf("expected verify to succeed")
	}
}

func TestTwoLeafTreeMatchesSortedPairFormula(t *testing.T) {
	a, b := leafOf("a"), leafOf("b")
	tree, err := Build([]Leaf{a, b})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := Node(a, b)
	if tree.Root() != want {
		t.Fatalf("root mismatch: got %x want %x", tree.Root(), want)
	}

	proof0, _ := tree.Proof(0)
	if !Verify(a, proof0, tree.Root()) {
		t.Fatalf("leaf 0 failed to verify")
	}
	proof1, _ := tree.Proof(1)
	if !Verify(b, proof1, tree.Root()) {
		t.Fatalf("leaf 1 failed to verify")
	}
}

func TestFiveLeafProofLengthAndTamperDetection(t *testing.T) {
	leaves := []Leaf{leafOf("a0"), leafOf("b0"), leafOf("c0"), leafOf("d0"), leafOf("e0")}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	proof, err := tree.ProofForLeaf(leaves[2])
	if err != nil {
		t.Fatalf("proof for leaf c0: %v", err)
	}
	if len(proof) != 3 {
		t.Fatalf("expected proof length 3 for 5-leaf tree, got %d", len(proof))
	}
	if !Verify(leaves[2], proof, tree.Root()) {
		t.Fatalf("expected proof to verify")
	}

	substitute := leafOf("f0")
	if Verify(substitute, proof, tree.Root()) {
		t.Fatalf("substituted leaf must not verify")
	}
}

func TestUltimateTreeSingleBatchPaddingInvariant(t *testing.T) {
	mri := leafOf("batch-mri")
	tree, err := BuildUltimate([]Leaf{mri})
	if err != nil {
		t.Fatalf("build ultimate: %v", err)
	}
	proof, err := tree.ProofForLeaf(mri)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(proof) != 1 {
		t.Fatalf("expected exactly one sibling in single-batch MPU, got %d", len(proof))
	}
	padding := hashkernel.H(mri[:])
	if proof[0] != padding {
		t.Fatalf("expected sole sibling to be keccak256(MRI)")
	}
	if !Verify(mri, proof, tree.Root()) {
		t.Fatalf("expected MPU to verify against MRU")
	}
}

func TestUltimateTreeMultiBatch(t *testing.T) {
	mris := []Leaf{leafOf("mri-1"), leafOf("mri-2"), leafOf("mri-3")}
	tree, err := BuildUltimate(mris)
	if err != nil {
		t.Fatalf("build ultimate: %v", err)
	}
	for _, mri := range mris {
		proof, err := tree.ProofForLeaf(mri)
		if err != nil {
			t.Fatalf("proof for %x: %v", mri, err)
		}
		if !Verify(mri, proof, tree.Root()) {
			t.Fatalf("proof for %x failed to verify", mri)
		}
	}
}

func TestMRIEqualsMRUEmptyProofIsValid(t *testing.T) {
	mri := leafOf("only-root")
	if !Verify(mri, Proof{}, mri) {
		t.Fatalf("expected MRI==MRU with empty proof to verify")
	}
}

func TestHexRoundTrip(t *testing.T) {
	leaves := []Leaf{leafOf("a0"), leafOf("b0"), leafOf("c0")}
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	proof, err := tree.ProofForLeaf(leaves[1])
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	hexes := proof.HexSlice()
	roundTripped, err := ProofFromHex(hexes)
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if !Verify(leaves[1], roundTripped, tree.Root()) {
		t.Fatalf("round-tripped proof failed to verify")
	}
}
