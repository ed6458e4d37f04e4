// Copyright 2025 Justifai
package anchor

import (
	"math/big"
	"testing"
)

func gwei(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), oneGwei) }

func TestComputeFeesEnforcesPriorityFloor(t *testing.T) {
	tip, _ := computeFees(gwei(1), gwei(10), 25, 0)
	if tip.Cmp(gwei(25)) != 0 {
		t.Fatalf("expected tip floored to 25 gwei, got %s", tip)
	}
}

func TestComputeFeesUsesDoubleBaseFeePlusPriority(t *testing.T) {
	_, feeCap := computeFees(gwei(25), gwei(20), 25, 0)
	want := gwei(65) // 2*20 + 25, above the 2*25 double-tip bound
	if feeCap.Cmp(want) != 0 {
		t.Fatalf("expected feeCap %s, got %s", want, feeCap)
	}
}

func TestComputeFeesEnforcesMaxFeeFloor(t *testing.T) {
	_, feeCap := computeFees(gwei(1), gwei(0), 1, 100)
	if feeCap.Cmp(gwei(100)) != 0 {
		t.Fatalf("expected feeCap floored to 100 gwei, got %s", feeCap)
	}
}
