package service

import (
	"math/big"
	"testing"

	"github.com/valkzuh/wagerbot/internal/domain"
)

const (
	escrowAcct = "EscrowTokenAcct111"
	walletA    = "WalletAAA"
	walletB    = "WalletBBB"
	mint       = "Mint999"
)

func expectation(amount int64) domain.DepositExpectation {
	return domain.DepositExpectation{
		CustodialAccounts: []string{escrowAcct},
		Mint:              mint,
		PartyAWallet:      walletA,
		PartyBWallet:      walletB,
		ExpectedAmount:    big.NewInt(amount),
		BaselinePosition:  1000,
	}
}

func depositTx(position uint64, credit int64, debitOwner string) *domain.TransactionDetail {
	deltas := []domain.TokenBalanceDelta{
		{Account: escrowAcct, Owner: "escrow-owner", Mint: mint, Pre: big.NewInt(0), Post: big.NewInt(credit)},
	}
	if debitOwner != "" {
		deltas = append(deltas, domain.TokenBalanceDelta{
			Account: "sender-acct", Owner: debitOwner, Mint: mint,
			Pre: big.NewInt(credit), Post: big.NewInt(0),
		})
	}
	return &domain.TransactionDetail{
		ID:            "sig-1",
		Position:      position,
		Succeeded:     true,
		BalanceDeltas: deltas,
	}
}

func TestDetectDepositExactAmountFromPartyA(t *testing.T) {
	res := DetectDeposit(depositTx(2000, 500, walletA), expectation(500))
	if !res.Detected || res.Payer != domain.PayerA {
		t.Fatalf("got %+v, want detected PayerA", res)
	}
}

func TestDetectDepositExactAmountFromPartyB(t *testing.T) {
	res := DetectDeposit(depositTx(2000, 500, walletB), expectation(500))
	if !res.Detected || res.Payer != domain.PayerB {
		t.Fatalf("got %+v, want detected PayerB", res)
	}
}

func TestDetectDepositRejectsWrongAmount(t *testing.T) {
	for _, credit := range []int64{499, 501, 1000} {
		res := DetectDeposit(depositTx(2000, credit, walletA), expectation(500))
		if res.Detected {
			t.Fatalf("credit %d: detected, want rejection", credit)
		}
	}
}

func TestDetectDepositRejectsFailedTx(t *testing.T) {
	tx := depositTx(2000, 500, walletA)
	tx.Succeeded = false
	if res := DetectDeposit(tx, expectation(500)); res.Detected {
		t.Fatalf("failed tx detected: %+v", res)
	}
}

func TestDetectDepositRejectsMemo(t *testing.T) {
	tx := depositTx(2000, 500, walletA)
	tx.MemoPresent = true
	if res := DetectDeposit(tx, expectation(500)); res.Detected {
		t.Fatalf("memo tx detected: %+v", res)
	}
}

func TestDetectDepositRejectsPreBaseline(t *testing.T) {
	if res := DetectDeposit(depositTx(999, 500, walletA), expectation(500)); res.Detected {
		t.Fatalf("pre-baseline tx detected: %+v", res)
	}
	// Exactly at the baseline is acceptable.
	if res := DetectDeposit(depositTx(1000, 500, walletA), expectation(500)); !res.Detected {
		t.Fatal("tx at baseline position rejected")
	}
}

func TestDetectDepositSignerFallback(t *testing.T) {
	tx := depositTx(2000, 500, "")
	tx.Signers = []string{walletB}
	res := DetectDeposit(tx, expectation(500))
	if !res.Detected || res.Payer != domain.PayerB {
		t.Fatalf("got %+v, want PayerB via signer fallback", res)
	}
}

func TestDetectDepositAmbiguousPayerIsNone(t *testing.T) {
	// Both parties signed and no balance delta pins a sender.
	tx := depositTx(2000, 500, "")
	tx.Signers = []string{walletA, walletB}
	res := DetectDeposit(tx, expectation(500))
	if !res.Detected {
		t.Fatal("exact-amount deposit not detected")
	}
	if res.Payer != domain.PayerNone {
		t.Fatalf("ambiguous deposit attributed to %v", res.Payer)
	}
}

func TestDetectDepositBalanceDeltaBeatsSigner(t *testing.T) {
	// Party B's account shows the matching debit even though A co-signed.
	tx := depositTx(2000, 500, walletB)
	tx.Signers = []string{walletA}
	res := DetectDeposit(tx, expectation(500))
	if res.Payer != domain.PayerB {
		t.Fatalf("got %v, want PayerB from balance delta", res.Payer)
	}
}

func TestDetectDepositIgnoresOtherMint(t *testing.T) {
	tx := &domain.TransactionDetail{
		ID: "sig-2", Position: 2000, Succeeded: true,
		BalanceDeltas: []domain.TokenBalanceDelta{
			{Account: escrowAcct, Owner: "escrow-owner", Mint: "OtherMint", Pre: big.NewInt(0), Post: big.NewInt(500)},
		},
	}
	if res := DetectDeposit(tx, expectation(500)); res.Detected {
		t.Fatalf("wrong-mint deposit detected: %+v", res)
	}
}

func TestDetectDepositSumsCustodialAliases(t *testing.T) {
	exp := expectation(500)
	exp.CustodialAccounts = []string{escrowAcct, "EscrowAlias222"}
	tx := &domain.TransactionDetail{
		ID: "sig-3", Position: 2000, Succeeded: true,
		BalanceDeltas: []domain.TokenBalanceDelta{
			{Account: escrowAcct, Owner: "escrow-owner", Mint: mint, Pre: big.NewInt(0), Post: big.NewInt(200)},
			{Account: "EscrowAlias222", Owner: "escrow-owner", Mint: mint, Pre: big.NewInt(0), Post: big.NewInt(300)},
			{Account: "sender-acct", Owner: walletA, Mint: mint, Pre: big.NewInt(500), Post: big.NewInt(0)},
		},
	}
	res := DetectDeposit(tx, exp)
	if !res.Detected || res.Payer != domain.PayerA {
		t.Fatalf("got %+v, want detected PayerA across aliases", res)
	}
}
