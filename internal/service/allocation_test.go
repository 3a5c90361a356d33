package service

import (
	"math/big"
	"testing"

	"github.com/valkzuh/wagerbot/internal/domain"
)

func recipients(weights ...int64) []domain.Recipient {
	out := make([]domain.Recipient, len(weights))
	for i, w := range weights {
		out[i] = domain.Recipient{Wallet: walletName(i), Weight: big.NewInt(w)}
	}
	return out
}

func walletName(i int) string {
	return string(rune('A' + i))
}

func allocationSum(allocs []domain.Allocation) *big.Int {
	sum := new(big.Int)
	for _, a := range allocs {
		sum.Add(sum, a.Amount)
	}
	return sum
}

func TestAllocateProportional(t *testing.T) {
	allocs, err := Allocate(big.NewInt(100), recipients(50, 30, 20))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{"A": 50, "B": 30, "C": 20}
	if len(allocs) != 3 {
		t.Fatalf("got %d allocations", len(allocs))
	}
	for _, a := range allocs {
		if a.Amount.Int64() != want[a.Wallet] {
			t.Fatalf("wallet %s got %s, want %d", a.Wallet, a.Amount, want[a.Wallet])
		}
	}
}

func TestAllocateRemainderToLargestHolders(t *testing.T) {
	// floor gives 3+3+3=9; the leftover unit goes to one recipient, and with
	// equal weights the input order breaks the tie.
	allocs, err := Allocate(big.NewInt(10), recipients(3, 3, 3))
	if err != nil {
		t.Fatal(err)
	}
	if got := allocationSum(allocs); got.Int64() != 10 {
		t.Fatalf("sum = %s, want 10", got)
	}
	if allocs[0].Wallet != "A" || allocs[0].Amount.Int64() != 4 {
		t.Fatalf("first allocation %s=%s, want A=4", allocs[0].Wallet, allocs[0].Amount)
	}
}

func TestAllocateRemainderOrderedByWeight(t *testing.T) {
	// floor: 7*5/12=2, 7*4/12=2, 7*3/12=1, sum 5, remainder 2 goes to the two
	// largest weights.
	allocs, err := Allocate(big.NewInt(7), recipients(5, 4, 3))
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]int64{}
	for _, a := range allocs {
		got[a.Wallet] = a.Amount.Int64()
	}
	if got["A"] != 3 || got["B"] != 3 || got["C"] != 1 {
		t.Fatalf("got %v, want A=3 B=3 C=1", got)
	}
}

func TestAllocateRemainderLargerThanKeptRecipients(t *testing.T) {
	// Six of seven weights floor to zero and are dropped, leaving a remainder
	// of 2 for a single kept recipient. The hand-out must cycle until the
	// pool is fully distributed.
	allocs, err := Allocate(big.NewInt(5), recipients(10, 1, 1, 1, 1, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(allocs) != 1 || allocs[0].Wallet != "A" {
		t.Fatalf("got %d allocations, want only A kept", len(allocs))
	}
	if got := allocationSum(allocs); got.Int64() != 5 {
		t.Fatalf("sum = %s, want the full pool", got)
	}
}

func TestAllocateDropsZeroShares(t *testing.T) {
	// The smallest weight floors to zero and is dropped entirely.
	allocs, err := Allocate(big.NewInt(3), recipients(1000, 1000, 1))
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range allocs {
		if a.Wallet == "C" {
			t.Fatalf("zero-share wallet kept with %s", a.Amount)
		}
		if a.Amount.Sign() <= 0 {
			t.Fatalf("wallet %s has non-positive amount %s", a.Wallet, a.Amount)
		}
	}
	if got := allocationSum(allocs); got.Int64() != 3 {
		t.Fatalf("sum = %s, want 3", got)
	}
}

func TestAllocateSumNeverExceedsPool(t *testing.T) {
	pools := []int64{1, 7, 99, 1000, 999999}
	weightSets := [][]int64{{1}, {1, 2, 3}, {7, 7, 7, 7}, {1000000, 1, 1}}
	for _, p := range pools {
		for _, ws := range weightSets {
			allocs, err := Allocate(big.NewInt(p), recipients(ws...))
			if err != nil {
				t.Fatalf("pool %d weights %v: %v", p, ws, err)
			}
			if sum := allocationSum(allocs); sum.Int64() > p {
				t.Fatalf("pool %d weights %v: sum %s exceeds pool", p, ws, sum)
			}
		}
	}
}

func TestAllocateEmptyInputs(t *testing.T) {
	if allocs, err := Allocate(nil, recipients(1, 2)); err != nil || allocs != nil {
		t.Fatalf("nil pool: %v, %v", allocs, err)
	}
	if allocs, err := Allocate(big.NewInt(0), recipients(1, 2)); err != nil || allocs != nil {
		t.Fatalf("zero pool: %v, %v", allocs, err)
	}
	if allocs, err := Allocate(big.NewInt(100), nil); err != nil || allocs != nil {
		t.Fatalf("no recipients: %v, %v", allocs, err)
	}
	if allocs, err := Allocate(big.NewInt(100), recipients(0, 0)); err != nil || allocs != nil {
		t.Fatalf("zero weights: %v, %v", allocs, err)
	}
}
