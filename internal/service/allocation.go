package service

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// Allocate splits pool pro-rata across recipients by weight. Each recipient
// gets floor(pool * weight / totalWeight); zero allocations are dropped; the
// unallocated remainder is handed out one base unit at a time, cycling over
// recipients in descending weight order (stable, so equal weights keep their
// input order) until it is exhausted. After remainder distribution the
// allocations sum to pool exactly.
//
// Returns domain.ErrPoolExceeded if the computed sum ever exceeds the pool;
// callers treat that as a fatal abort of the current run.
func Allocate(pool *big.Int, recipients []domain.Recipient) ([]domain.Allocation, error) {
	if pool == nil || pool.Sign() <= 0 || len(recipients) == 0 {
		return nil, nil
	}

	totalWeight := new(big.Int)
	for _, r := range recipients {
		if r.Weight != nil && r.Weight.Sign() > 0 {
			totalWeight.Add(totalWeight, r.Weight)
		}
	}
	if totalWeight.Sign() <= 0 {
		return nil, nil
	}

	allocs := make([]domain.Allocation, 0, len(recipients))
	for _, r := range recipients {
		if r.Weight == nil || r.Weight.Sign() <= 0 {
			continue
		}
		amount := new(big.Int).Mul(pool, r.Weight)
		amount.Quo(amount, totalWeight)
		if amount.Sign() <= 0 {
			continue
		}
		allocs = append(allocs, domain.Allocation{
			Wallet: r.Wallet,
			Weight: new(big.Int).Set(r.Weight),
			Amount: amount,
		})
	}
	if len(allocs) == 0 {
		return nil, nil
	}

	sum := new(big.Int)
	for _, a := range allocs {
		sum.Add(sum, a.Amount)
	}

	remainder := new(big.Int).Sub(pool, sum)
	if remainder.Sign() > 0 {
		sort.SliceStable(allocs, func(i, j int) bool {
			return allocs[i].Weight.Cmp(allocs[j].Weight) > 0
		})
		// When zero-floor recipients were dropped the remainder can exceed
		// the kept count, so the hand-out cycles until nothing is left.
		one := big.NewInt(1)
		for remainder.Sign() > 0 {
			for i := 0; i < len(allocs) && remainder.Sign() > 0; i++ {
				allocs[i].Amount.Add(allocs[i].Amount, one)
				remainder.Sub(remainder, one)
			}
		}
	}

	sum.SetInt64(0)
	for _, a := range allocs {
		sum.Add(sum, a.Amount)
	}
	if sum.Cmp(pool) > 0 {
		return nil, fmt.Errorf("allocating %s across %d recipients: %w", pool.String(), len(allocs), domain.ErrPoolExceeded)
	}

	return allocs, nil
}
