package service

import (
	"math/big"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// DetectDeposit decides whether one historical transaction deposited exactly
// the expected amount into one of the custodial accounts, and which party sent
// it.
//
// Attribution is conservative: a deposit that matches the amount but cannot be
// pinned on exactly one party is reported as detected with PayerNone and must
// not mark either side funded. The signer fallback (step 5) is a known
// limitation — a party could co-sign the other side's funding transaction and
// skew attribution in edge cases; the balance-delta rule always wins when it
// is unambiguous.
//
// Rules, in order:
//  1. Reject failed transactions and transactions carrying a memo/annotation
//     instruction (attribution-spoofing vector).
//  2. Reject transactions whose ledger position predates the session's
//     funding baseline.
//  3. The custodial token-balance delta for the expected mint must equal
//     exactly +expectedAmount. No partial or over-payment credit.
//  4. Attribute via a matching -expectedAmount delta whose pre-transaction
//     owner is exactly one of the two party wallets.
//  5. Fall back to transaction-signer identity, only if exactly one party
//     signed.
func DetectDeposit(tx *domain.TransactionDetail, exp domain.DepositExpectation) domain.DepositResult {
	none := domain.DepositResult{}
	if tx == nil || !tx.Succeeded || tx.MemoPresent {
		return none
	}
	if exp.BaselinePosition > 0 && tx.Position > 0 && tx.Position < exp.BaselinePosition {
		return none
	}
	if exp.ExpectedAmount == nil || exp.ExpectedAmount.Sign() <= 0 {
		return none
	}

	custodial := make(map[string]bool, len(exp.CustodialAccounts))
	for _, a := range exp.CustodialAccounts {
		custodial[a] = true
	}

	// Net delta across custodial aliases for the expected mint. A deposit
	// credits exactly one alias; summing keeps the exact-amount rule intact.
	received := new(big.Int)
	seenCustodial := false
	for _, d := range tx.BalanceDeltas {
		if d.Mint != exp.Mint || !custodial[d.Account] {
			continue
		}
		seenCustodial = true
		received.Add(received, d.Delta())
	}
	if !seenCustodial || received.Cmp(exp.ExpectedAmount) != 0 {
		return none
	}

	// Corresponding debit on a party-owned token account.
	negExpected := new(big.Int).Neg(exp.ExpectedAmount)
	aMatch, bMatch := false, false
	for _, d := range tx.BalanceDeltas {
		if d.Mint != exp.Mint || custodial[d.Account] {
			continue
		}
		if d.Delta().Cmp(negExpected) != 0 {
			continue
		}
		if d.Owner == exp.PartyAWallet {
			aMatch = true
		}
		if d.Owner == exp.PartyBWallet {
			bMatch = true
		}
	}

	if aMatch && !bMatch {
		return domain.DepositResult{Detected: true, Payer: domain.PayerA}
	}
	if bMatch && !aMatch {
		return domain.DepositResult{Detected: true, Payer: domain.PayerB}
	}

	// Signer fallback, only when exactly one party signed.
	aSigned, bSigned := false, false
	for _, s := range tx.Signers {
		if s == exp.PartyAWallet {
			aSigned = true
		}
		if s == exp.PartyBWallet {
			bSigned = true
		}
	}
	if aSigned && !bSigned {
		return domain.DepositResult{Detected: true, Payer: domain.PayerA}
	}
	if bSigned && !aSigned {
		return domain.DepositResult{Detected: true, Payer: domain.PayerB}
	}

	return domain.DepositResult{Detected: true, Payer: domain.PayerNone}
}
