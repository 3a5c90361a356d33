package domain

import (
	"math/big"
	"time"
)

// DistributionState is the persisted singleton baseline for the fee
// distributor. The stored balance only moves forward across runs.
type DistributionState struct {
	LastFeeBalanceBase *big.Int
	LastRunTimestamp   time.Time
}

// Recipient is one weighted payout target for a distribution run. Weight is
// the holder's balance in base units.
type Recipient struct {
	Wallet string
	Weight *big.Int
}

// Allocation is a recipient's computed share of the pool.
type Allocation struct {
	Wallet string
	Weight *big.Int
	Amount *big.Int
}

// TransferOutcome records the result of one distribution transfer. A failed
// transfer is reported and left alone; there is no automatic retry.
type TransferOutcome struct {
	Wallet string
	Amount *big.Int
	TxID   string
	Err    string
}

// DistributionRun summarizes one completed (or aborted) distributor cycle for
// the history store.
type DistributionRun struct {
	ID              string
	ObservedBalance *big.Int
	Delta           *big.Int
	Pool            *big.Int
	Recipients      int
	SentOK          int
	SentFail        int
	ExecutedAt      time.Time
}
