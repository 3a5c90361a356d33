package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// Alerter is the operator notification hook. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// escrowFunds is a snapshot of the custody a terminal transition must unwind:
// the escrow signer, the economic terms, and which sides actually paid.
type escrowFunds struct {
	escrow  domain.TransferSigner
	terms   domain.WagerTerms
	partyA  domain.Party
	partyB  domain.Party
	fundedA bool
	fundedB bool
}

// SettlementEngine executes the payout and refund transfers for terminal
// session transitions. It never decides outcomes; sessions do.
type SettlementEngine struct {
	ledger    domain.LedgerClient
	feeWallet string
	alerter   Alerter
	logger    *slog.Logger
}

// NewSettlementEngine creates a SettlementEngine paying fees to feeWallet.
func NewSettlementEngine(ledger domain.LedgerClient, feeWallet string, alerter Alerter, logger *slog.Logger) *SettlementEngine {
	return &SettlementEngine{
		ledger:    ledger,
		feeWallet: feeWallet,
		alerter:   alerter,
		logger:    logger.With(slog.String("component", "settlement")),
	}
}

// transfer submits one escrow-signed transfer.
func (e *SettlementEngine) transfer(ctx context.Context, f *escrowFunds, toWallet string, amount *big.Int, kind string) (string, error) {
	txID, err := e.ledger.TransferToken(ctx, domain.TransferRequest{
		FromWallet: f.escrow.Address(),
		ToWallet:   toWallet,
		Mint:       f.terms.Mint,
		Amount:     new(big.Int).Set(amount),
		Signer:     f.escrow,
	})
	if err != nil {
		return "", fmt.Errorf("settlement: %s transfer to %s: %w", kind, toWallet, err)
	}
	e.logger.Info("transfer submitted",
		slog.String("kind", kind),
		slog.String("to", toWallet),
		slog.String("amount_base", amount.String()),
		slog.String("tx", txID),
	)
	return txID, nil
}

// RefundOne returns one side's exact stake. A failure is retried once
// immediately; a second failure is surfaced (and alerted) but never blocks
// termination.
func (e *SettlementEngine) RefundOne(ctx context.Context, f *escrowFunds, p domain.Party) error {
	amount := f.terms.AmountBase()
	_, err := e.transfer(ctx, f, p.Wallet, amount, "refund")
	if err == nil {
		return nil
	}
	e.logger.Warn("refund failed, retrying once",
		slog.String("wallet", p.Wallet),
		slog.String("error", err.Error()),
	)
	if _, retryErr := e.transfer(ctx, f, p.Wallet, amount, "refund"); retryErr == nil {
		return nil
	}

	if e.alerter != nil {
		_ = e.alerter.Notify(ctx, "transfer_failed", "Refund failed",
			fmt.Sprintf("refund of %s base units to %s failed twice; manual re-run required", amount.String(), p.Wallet))
	}
	return err
}

// RefundBoth refunds every funded side independently. Errors are combined;
// one failed leg never stops the other.
func (e *SettlementEngine) RefundBoth(ctx context.Context, f *escrowFunds) error {
	var errs []string
	if f.fundedA {
		if err := e.RefundOne(ctx, f, f.partyA); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if f.fundedB {
		if err := e.RefundOne(ctx, f, f.partyB); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	if e.alerter != nil && (f.fundedA || f.fundedB) {
		_ = e.alerter.Notify(ctx, "wager_refunded", "Wager refunded",
			fmt.Sprintf("stakes of %s base units returned (%s / %s)",
				f.terms.AmountBase().String(), f.partyA.Identity, f.partyB.Identity))
	}
	return nil
}

// PayWinner transfers pot minus fee to the winner's wallet and the fee to the
// protocol fee account. A failed winner payout falls back to refunding both
// sides. The fee transfer is independent: its failure is logged and alerted
// but never blocks termination.
func (e *SettlementEngine) PayWinner(ctx context.Context, f *escrowFunds, winnerWallet string) error {
	payout := f.terms.WinnerPayoutBase()
	if _, err := e.transfer(ctx, f, winnerWallet, payout, "payout"); err != nil {
		e.logger.Error("winner payout failed, refunding both sides",
			slog.String("winner_wallet", winnerWallet),
			slog.String("error", err.Error()),
		)
		if refundErr := e.RefundBoth(ctx, f); refundErr != nil {
			return fmt.Errorf("settlement: payout failed (%v); fallback refund also failed: %w", err, refundErr)
		}
		return fmt.Errorf("settlement: payout failed, both sides refunded: %w", err)
	}

	if fee := f.terms.FeeBase(); fee.Sign() > 0 {
		if _, err := e.transfer(ctx, f, e.feeWallet, fee, "fee"); err != nil {
			e.logger.Error("fee transfer failed", slog.String("error", err.Error()))
			if e.alerter != nil {
				_ = e.alerter.Notify(ctx, "transfer_failed", "Fee transfer failed",
					fmt.Sprintf("fee of %s base units to %s failed; funds remain in escrow", fee.String(), e.feeWallet))
			}
		}
	}
	if e.alerter != nil {
		_ = e.alerter.Notify(ctx, "wager_settled", "Wager settled",
			fmt.Sprintf("paid %s base units to %s", payout.String(), winnerWallet))
	}
	return nil
}
