package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// distributionLockKey guards the whole run across processes.
const distributionLockKey = "wagerbot:fees:run"

// DistributorParams is the tuning surface of the FeeDistributor, populated
// from configuration.
type DistributorParams struct {
	Interval      time.Duration
	MinPoolTokens int64
	PoolShareNum  int64
	PoolShareDen  int64
	// CarryRemainder keeps the baseline in place on a below-minimum pool so
	// dust accrues into the next run instead of being retained.
	CarryRemainder bool
	Concurrency    int
	// FeeWallet is the treasury address holding accrued fees.
	FeeWallet string
}

// FeeDistributor periodically splits newly accrued wager fees pro-rata across
// roster holders. Each run observes the fee balance, distributes a fixed
// fraction of the growth since the stored baseline, and advances the baseline
// so the same fees are never paid twice.
type FeeDistributor struct {
	params   DistributorParams
	treasury domain.TransferSigner
	ledger   domain.LedgerClient
	roster   domain.RosterSource
	state    domain.StateStore
	lock     domain.RunLock
	history  domain.DistributionStore // nil disables run history
	alerter  Alerter
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewFeeDistributor wires a FeeDistributor.
func NewFeeDistributor(
	params DistributorParams,
	treasury domain.TransferSigner,
	ledger domain.LedgerClient,
	roster domain.RosterSource,
	state domain.StateStore,
	lock domain.RunLock,
	history domain.DistributionStore,
	alerter Alerter,
	logger *slog.Logger,
) *FeeDistributor {
	return &FeeDistributor{
		params:   params,
		treasury: treasury,
		ledger:   ledger,
		roster:   roster,
		state:    state,
		lock:     lock,
		history:  history,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "distributor")),
	}
}

// Run executes one distribution immediately and then on the configured
// interval until ctx is cancelled.
func (d *FeeDistributor) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.params.Interval)
	defer ticker.Stop()

	d.logger.Info("distributor started", slog.Duration("interval", d.params.Interval))
	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick runs one cycle. Lock contention is a routine skip, not an error.
func (d *FeeDistributor) tick(ctx context.Context) {
	if err := d.RunOnce(ctx); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			d.logger.Info("distribution skipped, lock held elsewhere")
			return
		}
		d.logger.Error("distribution run failed", slog.String("error", err.Error()))
		if d.alerter != nil {
			_ = d.alerter.Notify(ctx, "error", "Fee distribution failed", err.Error())
		}
	}
}

// RunOnce performs one distribution cycle. It is guarded twice: an in-process
// flag against overlapping ticks, and the shared run lock against concurrent
// processes.
func (d *FeeDistributor) RunOnce(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.logger.Warn("distribution tick skipped, previous run still active")
		return nil
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	unlock, err := d.lock.Acquire(ctx, distributionLockKey, 2*d.params.Interval)
	if err != nil {
		return fmt.Errorf("distributor: acquire run lock: %w", err)
	}
	defer unlock()

	return d.distribute(ctx)
}

func (d *FeeDistributor) distribute(ctx context.Context) error {
	export, err := d.roster.FetchExport(ctx)
	if err != nil {
		return fmt.Errorf("distributor: fetch roster: %w", err)
	}

	decimals, err := d.ledger.GetTokenDecimals(ctx, export.TokenMint)
	if err != nil {
		return fmt.Errorf("distributor: resolve token decimals: %w", err)
	}

	recipients, err := buildRecipients(export, decimals)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		d.logger.Info("no eligible recipients on roster")
		return nil
	}

	st, err := d.state.Load()
	if err != nil {
		return fmt.Errorf("distributor: load baseline: %w", err)
	}

	observed, err := d.feeBalance(ctx, export.TokenMint)
	if err != nil {
		return err
	}

	delta := new(big.Int).Sub(observed, st.LastFeeBalanceBase)
	if delta.Sign() <= 0 {
		d.logger.Info("no fee growth since baseline",
			slog.String("observed_base", observed.String()),
			slog.String("baseline_base", st.LastFeeBalanceBase.String()),
		)
		// The baseline follows the balance downward too, so growth after an
		// operator withdrawal is measured from the new level.
		return d.saveBaseline(observed)
	}

	pool := new(big.Int).Mul(delta, big.NewInt(d.params.PoolShareNum))
	pool.Quo(pool, big.NewInt(d.params.PoolShareDen))

	minPool := domain.WholeTokensToBase(d.params.MinPoolTokens, decimals)
	if pool.Cmp(minPool) < 0 {
		if d.params.CarryRemainder {
			d.logger.Info("pool below minimum, carrying into next run",
				slog.String("pool_base", pool.String()))
			return nil
		}
		// Baseline advances anyway so sub-minimum dust is retained, not
		// accumulated. Product policy.
		d.logger.Info("pool below minimum, advancing baseline",
			slog.String("pool_base", pool.String()))
		return d.saveBaseline(observed)
	}

	allocs, err := Allocate(pool, recipients)
	if err != nil {
		// An allocation invariant failure aborts without touching the
		// baseline; the same fees will be re-attempted next run.
		return fmt.Errorf("distributor: %w", err)
	}
	if len(allocs) == 0 {
		return d.saveBaseline(observed)
	}

	d.logger.Info("distributing fees",
		slog.String("observed_base", observed.String()),
		slog.String("delta_base", delta.String()),
		slog.String("pool_base", pool.String()),
		slog.Int("recipients", len(allocs)),
	)

	outcomes := d.sendAll(ctx, export.TokenMint, allocs)

	okCount, failCount := 0, 0
	for _, o := range outcomes {
		if o.Err == "" {
			okCount++
		} else {
			failCount++
		}
	}

	// The baseline advances even when some transfers failed: re-running with
	// the old baseline would double-pay every successful recipient. Failures
	// are surfaced for manual follow-up instead.
	if err := d.saveBaseline(observed); err != nil {
		return err
	}

	run := &domain.DistributionRun{
		ID:              uuid.NewString(),
		ObservedBalance: observed,
		Delta:           delta,
		Pool:            pool,
		Recipients:      len(allocs),
		SentOK:          okCount,
		SentFail:        failCount,
		ExecutedAt:      time.Now().UTC(),
	}
	if d.history != nil {
		if err := d.history.RecordRun(ctx, run, outcomes); err != nil {
			d.logger.Warn("history insert failed", slog.String("error", err.Error()))
		}
	}

	d.logger.Info("distribution complete",
		slog.Int("sent_ok", okCount),
		slog.Int("sent_fail", failCount),
	)
	if d.alerter != nil {
		_ = d.alerter.Notify(ctx, "airdrop_completed", "Fee distribution complete",
			fmt.Sprintf("distributed %s base units to %d holders (%d ok, %d failed)",
				pool.String(), len(allocs), okCount, failCount))
	}
	if failCount > 0 && d.alerter != nil {
		_ = d.alerter.Notify(ctx, "transfer_failed", "Distribution transfers failed",
			fmt.Sprintf("%d of %d transfers failed; they will not be retried automatically", failCount, len(allocs)))
	}
	return nil
}

// feeBalance reads the treasury's token balance for the fee mint, summing
// across account aliases.
func (d *FeeDistributor) feeBalance(ctx context.Context, mint string) (*big.Int, error) {
	accounts, err := d.ledger.ListTokenAccounts(ctx, d.params.FeeWallet, mint)
	if err != nil {
		return nil, fmt.Errorf("distributor: resolve fee accounts: %w", err)
	}
	total := new(big.Int)
	for _, acct := range accounts {
		bal, err := d.ledger.GetTokenAccountBalance(ctx, acct)
		if err != nil {
			return nil, fmt.Errorf("distributor: read fee balance of %s: %w", acct, err)
		}
		total.Add(total, bal)
	}
	return total, nil
}

// sendAll executes the distribution transfers with bounded concurrency. Every
// allocation gets exactly one attempt; outcomes preserve allocation order.
func (d *FeeDistributor) sendAll(ctx context.Context, mint string, allocs []domain.Allocation) []domain.TransferOutcome {
	outcomes := make([]domain.TransferOutcome, len(allocs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.params.Concurrency)
	for i, a := range allocs {
		i, a := i, a
		g.Go(func() error {
			txID, err := d.ledger.TransferToken(gctx, domain.TransferRequest{
				FromWallet: d.params.FeeWallet,
				ToWallet:   a.Wallet,
				Mint:       mint,
				Amount:     new(big.Int).Set(a.Amount),
				Signer:     d.treasury,
			})
			out := domain.TransferOutcome{Wallet: a.Wallet, Amount: a.Amount, TxID: txID}
			if err != nil {
				out.Err = err.Error()
				d.logger.Warn("distribution transfer failed",
					slog.String("wallet", a.Wallet),
					slog.String("amount_base", a.Amount.String()),
					slog.String("error", err.Error()),
				)
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// saveBaseline persists the observed balance as the new baseline.
func (d *FeeDistributor) saveBaseline(observed *big.Int) error {
	st := &domain.DistributionState{
		LastFeeBalanceBase: new(big.Int).Set(observed),
		LastRunTimestamp:   time.Now().UTC(),
	}
	if err := d.state.Save(st); err != nil {
		return fmt.Errorf("distributor: save baseline: %w", err)
	}
	return nil
}

// buildRecipients converts roster rows to weighted recipients. Rows without a
// wallet or with a non-positive balance are skipped; duplicate wallets are
// collapsed to their maximum weight so a double-listed holder is paid once.
func buildRecipients(export *domain.RosterExport, decimals int) ([]domain.Recipient, error) {
	byWallet := make(map[string]*big.Int)
	order := make([]string, 0, len(export.Roster))
	for _, row := range export.Roster {
		if row.Wallet == "" {
			continue
		}
		weight, err := domain.ToBaseUnits(row.Balance, decimals)
		if err != nil {
			return nil, fmt.Errorf("distributor: balance of %s: %w", row.Wallet, err)
		}
		if weight.Sign() <= 0 {
			continue
		}
		if prev, ok := byWallet[row.Wallet]; ok {
			if weight.Cmp(prev) > 0 {
				byWallet[row.Wallet] = weight
			}
			continue
		}
		byWallet[row.Wallet] = weight
		order = append(order, row.Wallet)
	}

	recipients := make([]domain.Recipient, 0, len(order))
	for _, wallet := range order {
		recipients = append(recipients, domain.Recipient{Wallet: wallet, Weight: byWallet[wallet]})
	}
	return recipients, nil
}
