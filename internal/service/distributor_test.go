package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

type distributorFixture struct {
	dist   *FeeDistributor
	ledger *fakeLedger
	state  *fakeStateStore
	lock   *fakeRunLock
}

func newDistributorFixture(t *testing.T, params DistributorParams, export *domain.RosterExport) *distributorFixture {
	t.Helper()
	led := newFakeLedger()
	led.accounts[feeWallet] = []string{"fee-acct"}
	state := &fakeStateStore{}
	lock := &fakeRunLock{}

	dist := NewFeeDistributor(
		params,
		&fakeSigner{addr: "treasury"},
		led,
		&fakeRoster{export: export},
		state,
		lock,
		nil,
		nil,
		testLogger(),
	)
	return &distributorFixture{dist: dist, ledger: led, state: state, lock: lock}
}

func holderExport(rows ...domain.RosterRow) *domain.RosterExport {
	return &domain.RosterExport{TokenMint: mint, Roster: rows}
}

func defaultDistParams() DistributorParams {
	return DistributorParams{
		Interval:     time.Hour,
		PoolShareNum: 2,
		PoolShareDen: 3,
		Concurrency:  4,
		FeeWallet:    feeWallet,
	}
}

func TestDistributorPaysProRataAndAdvancesBaseline(t *testing.T) {
	export := holderExport(
		domain.RosterRow{Identity: "alice", Wallet: walletA, Balance: "3"},
		domain.RosterRow{Identity: "bob", Wallet: walletB, Balance: "1"},
	)
	f := newDistributorFixture(t, defaultDistParams(), export)
	f.state.st = &domain.DistributionState{LastFeeBalanceBase: big.NewInt(1_000_000)}
	f.ledger.tokenBal["fee-acct"] = big.NewInt(1_600_000)

	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	// delta 600000, pool 2/3 of it, split 3:1.
	got := map[string]int64{}
	for _, tr := range f.ledger.sentTransfers() {
		if tr.FromWallet != feeWallet || tr.Mint != mint {
			t.Fatalf("transfer from %s mint %s", tr.FromWallet, tr.Mint)
		}
		got[tr.ToWallet] = tr.Amount.Int64()
	}
	if got[walletA] != 300_000 || got[walletB] != 100_000 {
		t.Fatalf("transfers %v, want A=300000 B=100000", got)
	}
	if base := f.state.baseline(); base.Int64() != 1_600_000 {
		t.Fatalf("baseline = %s, want observed balance", base)
	}
}

func TestDistributorRunsAtStartup(t *testing.T) {
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, defaultDistParams(), export)
	f.ledger.tokenBal["fee-acct"] = big.NewInt(3_000_000)

	// The interval is an hour; any transfer can only come from the startup run.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := f.dist.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}
	if n := len(f.ledger.sentTransfers()); n != 1 {
		t.Fatalf("%d transfers from startup run, want 1", n)
	}
}

func TestDistributorShrunkenBalanceResetsBaseline(t *testing.T) {
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, defaultDistParams(), export)
	f.state.st = &domain.DistributionState{LastFeeBalanceBase: big.NewInt(1_000_000)}
	f.ledger.tokenBal["fee-acct"] = big.NewInt(400_000)

	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(f.ledger.sentTransfers()); n != 0 {
		t.Fatalf("%d transfers on shrunken balance", n)
	}
	// The baseline follows the balance down so the next growth is measured
	// from the new level, not the stale high-water mark.
	if base := f.state.baseline(); base.Int64() != 400_000 {
		t.Fatalf("baseline = %s, want 400000 (advanced to observed balance)", base)
	}
}

func TestDistributorNoGrowthIsNoOp(t *testing.T) {
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, defaultDistParams(), export)
	f.state.st = &domain.DistributionState{LastFeeBalanceBase: big.NewInt(500_000)}
	f.ledger.tokenBal["fee-acct"] = big.NewInt(500_000)

	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(f.ledger.sentTransfers()); n != 0 {
		t.Fatalf("%d transfers without fee growth", n)
	}
	if base := f.state.baseline(); base.Int64() != 500_000 {
		t.Fatalf("baseline moved to %s", base)
	}
}

func TestDistributorBelowMinimumCarriesWhenConfigured(t *testing.T) {
	params := defaultDistParams()
	params.MinPoolTokens = 10 // 10 tokens at 6 decimals, far above the pool
	params.CarryRemainder = true
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, params, export)
	f.ledger.tokenBal["fee-acct"] = big.NewInt(900)

	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(f.ledger.sentTransfers()); n != 0 {
		t.Fatalf("%d transfers below minimum pool", n)
	}
	// Carrying means the dust stays claimable next run.
	if base := f.state.baseline(); base.Sign() != 0 {
		t.Fatalf("baseline advanced to %s while carrying", base)
	}
}

func TestDistributorBelowMinimumRetainsWhenNotCarrying(t *testing.T) {
	params := defaultDistParams()
	params.MinPoolTokens = 10
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, params, export)
	f.ledger.tokenBal["fee-acct"] = big.NewInt(900)

	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(f.ledger.sentTransfers()); n != 0 {
		t.Fatalf("%d transfers below minimum pool", n)
	}
	if base := f.state.baseline(); base.Int64() != 900 {
		t.Fatalf("baseline = %s, want observed balance", base)
	}
}

func TestDistributorFailedTransfersStillAdvanceBaseline(t *testing.T) {
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, defaultDistParams(), export)
	f.ledger.tokenBal["fee-acct"] = big.NewInt(3_000_000)
	f.ledger.transferErr = errors.New("rpc unavailable")

	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Re-running against the old baseline would double-pay whoever succeeded.
	if base := f.state.baseline(); base.Int64() != 3_000_000 {
		t.Fatalf("baseline = %s after failed transfers, want observed", base)
	}
}

func TestDistributorLockHeldElsewhere(t *testing.T) {
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "1"})
	f := newDistributorFixture(t, defaultDistParams(), export)
	f.lock.held = true
	f.ledger.tokenBal["fee-acct"] = big.NewInt(3_000_000)

	err := f.dist.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("got %v, want ErrLockHeld", err)
	}
	if n := len(f.ledger.sentTransfers()); n != 0 {
		t.Fatalf("%d transfers while lock held", n)
	}
}

func TestDistributorEmptyRosterIsRoutineSkip(t *testing.T) {
	f := newDistributorFixture(t, defaultDistParams(), holderExport())
	f.ledger.tokenBal["fee-acct"] = big.NewInt(3_000_000)

	// An empty roster is a configuration state, not a failure.
	if err := f.dist.RunOnce(context.Background()); err != nil {
		t.Fatalf("empty roster: %v", err)
	}
	if n := len(f.ledger.sentTransfers()); n != 0 {
		t.Fatalf("%d transfers with no recipients", n)
	}
	if base := f.state.baseline(); base.Sign() != 0 {
		t.Fatalf("baseline moved to %s with no recipients", base)
	}
}

func TestBuildRecipients(t *testing.T) {
	export := holderExport(
		domain.RosterRow{Identity: "a", Wallet: walletA, Balance: "2.5"},
		domain.RosterRow{Identity: "no-wallet", Wallet: "", Balance: "9"},
		domain.RosterRow{Identity: "zero", Wallet: "WalletZero", Balance: "0"},
		domain.RosterRow{Identity: "b", Wallet: walletB, Balance: "1"},
		domain.RosterRow{Identity: "a-alt", Wallet: walletA, Balance: "4"},
	)
	recipients, err := buildRecipients(export, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 2 {
		t.Fatalf("got %d recipients, want 2", len(recipients))
	}
	// Duplicate wallets collapse to their largest balance, first-seen order.
	if recipients[0].Wallet != walletA || recipients[0].Weight.Int64() != 4_000_000 {
		t.Fatalf("first recipient %s weight %s", recipients[0].Wallet, recipients[0].Weight)
	}
	if recipients[1].Wallet != walletB || recipients[1].Weight.Int64() != 1_000_000 {
		t.Fatalf("second recipient %s weight %s", recipients[1].Wallet, recipients[1].Weight)
	}
}

func TestBuildRecipientsRejectsBadBalance(t *testing.T) {
	export := holderExport(domain.RosterRow{Wallet: walletA, Balance: "not-a-number"})
	if _, err := buildRecipients(export, 6); err == nil {
		t.Fatal("malformed balance accepted")
	}
}
