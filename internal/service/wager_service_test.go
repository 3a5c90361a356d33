package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

func newWagerFixture(t *testing.T, tables ...*EscrowTable) (*WagerService, *fakeLedger, *fakeWagerStore) {
	t.Helper()
	logger := testLogger()
	led := newFakeLedger()
	store := &fakeWagerStore{}
	if len(tables) == 0 {
		tables = []*EscrowTable{{Signer: &fakeSigner{addr: escrowAddr}}}
	}
	roster := &fakeRoster{export: &domain.RosterExport{
		TokenMint: mint,
		Roster: []domain.RosterRow{
			{Identity: "alice", Wallet: walletA, Balance: "10"},
			{Identity: "bob", Wallet: walletB, Balance: "10"},
			{Identity: "nowallet", Wallet: "", Balance: "10"},
		},
	}}

	svc := NewWagerService(
		WagerParams{
			MinTokens:     10,
			MaxTokens:     1000,
			FeeBps:        100,
			AcceptWindow:  time.Hour,
			FundWindow:    time.Hour,
			PollInterval:  time.Hour,
			SigFetchLimit: 25,
			MinGasBalance: 5_000_000,
		},
		tables,
		roster,
		led,
		NewRegistry(logger),
		NewSettlementEngine(led, feeWallet, nil, logger),
		&fakeAnnouncer{},
		store,
		logger,
	)
	t.Cleanup(func() {
		for _, s := range svc.Registry().All() {
			s.stopTimers()
		}
	})
	return svc, led, store
}

func TestCreateWagerValidation(t *testing.T) {
	svc, _, _ := newWagerFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateWager(ctx, "chan", "alice", "alice", 100); err == nil {
		t.Fatal("self-wager accepted")
	}
	if _, err := svc.CreateWager(ctx, "chan", "alice", "bob", 5); err == nil {
		t.Fatal("below-minimum amount accepted")
	}
	if _, err := svc.CreateWager(ctx, "chan", "alice", "bob", 2000); err == nil {
		t.Fatal("above-maximum amount accepted")
	}
	if _, err := svc.CreateWager(ctx, "chan", "alice", "nowallet", 100); err != domain.ErrRosterMiss {
		t.Fatal("opponent without linked wallet accepted")
	}
	if _, err := svc.CreateWager(ctx, "chan", "stranger", "bob", 100); err != domain.ErrRosterMiss {
		t.Fatal("initiator off the roster accepted")
	}
}

func TestCreateWagerOpensSession(t *testing.T) {
	svc, led, store := newWagerFixture(t)
	led.accounts[escrowAddr] = []string{escrowAcct}

	s, err := svc.CreateWager(context.Background(), "chan", "alice", "bob", 100)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Status(); got != domain.StatusPendingAccept {
		t.Fatalf("status = %s", got)
	}
	a, b := s.Parties()
	if a.Wallet != walletA || b.Wallet != walletB {
		t.Fatalf("parties %+v / %+v", a, b)
	}
	if svc.Registry().Get(s.ID()) != s {
		t.Fatal("session not registered")
	}
	store.mu.Lock()
	created := len(store.created)
	store.mu.Unlock()
	if created != 1 {
		t.Fatalf("%d audit inserts, want 1", created)
	}
}

func TestCreateWagerBlocksBusyParticipants(t *testing.T) {
	svc, _, _ := newWagerFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateWager(ctx, "chan", "alice", "bob", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateWager(ctx, "chan", "alice", "bob", 50); err != domain.ErrParticipantBusy {
		t.Fatalf("got %v, want ErrParticipantBusy", err)
	}
}

func TestPickTableSkipsLowGas(t *testing.T) {
	broke := &EscrowTable{Signer: &fakeSigner{addr: "table-broke"}}
	funded := &EscrowTable{Signer: &fakeSigner{addr: "table-funded"}}
	svc, led, _ := newWagerFixture(t, broke, funded)
	led.gas["table-broke"] = big.NewInt(100)

	table, err := svc.pickTable(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table != funded {
		t.Fatalf("picked %s", table.Signer.Address())
	}
	if !broke.Paused() {
		t.Fatal("low-gas table not paused")
	}

	// Topping the table back up unpauses it on a later rotation.
	led.mu.Lock()
	led.gas["table-broke"] = big.NewInt(10_000_000)
	led.mu.Unlock()
	for i := 0; i < 2; i++ {
		if _, err := svc.pickTable(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if broke.Paused() {
		t.Fatal("topped-up table still paused")
	}
}

func TestPickTableAllPaused(t *testing.T) {
	only := &EscrowTable{Signer: &fakeSigner{addr: "table-only"}}
	svc, led, _ := newWagerFixture(t, only)
	led.gas["table-only"] = big.NewInt(0)

	if _, err := svc.pickTable(context.Background()); err != domain.ErrTablePaused {
		t.Fatalf("got %v, want ErrTablePaused", err)
	}
}

func TestServiceForwardsToSession(t *testing.T) {
	svc, _, _ := newWagerFixture(t)
	ctx := context.Background()

	if err := svc.Accept(ctx, "missing", "bob"); err != domain.ErrNotFound {
		t.Fatalf("Accept on unknown session: %v", err)
	}
	if err := svc.Decline("missing", "bob"); err != domain.ErrNotFound {
		t.Fatalf("Decline on unknown session: %v", err)
	}
	if err := svc.ForceEnd("missing", ""); err != domain.ErrNotFound {
		t.Fatalf("ForceEnd on unknown session: %v", err)
	}

	s, err := svc.CreateWager(ctx, "chan", "alice", "bob", 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Decline(s.ID(), "bob"); err != nil {
		t.Fatal(err)
	}
	if got := s.Status(); got != domain.StatusDeclined {
		t.Fatalf("status = %s", got)
	}
}
